package model

// RubricSignal is one weighted piece of evidence for or against a candidate
// being the property owner. Value is clamped to [-1, 1]; Weight is >= 0;
// Contribution = Weight * Value.
type RubricSignal struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	Weight       float64 `json:"weight"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Reason       string  `json:"reason,omitempty"`
}

// OccupantScore is a candidate's total rubric score with the signals that
// produced it. Rank is dense, descending by Total, ties broken by stable
// input order.
type OccupantScore struct {
	NameKey  string         `json:"name_key"`
	FullName string         `json:"full_name"`
	Total    float64        `json:"total"`
	Rank     int            `json:"rank"`
	Signals  []RubricSignal `json:"signals"`
}
