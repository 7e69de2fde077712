package model

import "time"

// ResolutionStatus is the lifecycle state of a property resolution. A
// resolution is created `running` and is terminal once it leaves that state.
type ResolutionStatus string

const (
	ResolutionRunning           ResolutionStatus = "running"
	ResolutionCorporate         ResolutionStatus = "corporate"
	ResolutionResolved          ResolutionStatus = "resolved"
	ResolutionNeedsConfirmation ResolutionStatus = "needs_confirmation"
	ResolutionNeedsTitle        ResolutionStatus = "needs_title_register"
	ResolutionNoPublicData      ResolutionStatus = "no_public_data"
	ResolutionFailed            ResolutionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ResolutionStatus) Terminal() bool { return s != ResolutionRunning }

// OwnerType classifies the resolved owner.
type OwnerType string

const (
	OwnerCorporate  OwnerType = "corporate"
	OwnerIndividual OwnerType = "individual"
	OwnerUnknown    OwnerType = "unknown"
)

// CorporateOwner is the resolved corporate owner of a property.
type CorporateOwner struct {
	OwnerName     string `json:"owner_name"`
	CompanyNumber string `json:"company_number,omitempty"`
	Dataset       string `json:"dataset,omitempty"`
	MatchReason   string `json:"match_reason,omitempty"`
}

// ResolutionResult is the payload attached to a resolution once a stage
// produces an answer.
type ResolutionResult struct {
	Corporate  *CorporateOwner `json:"corporate,omitempty"`
	BestName   string          `json:"best_name,omitempty"`
	BestScore  float64         `json:"best_score,omitempty"`
	Candidates []OccupantScore `json:"candidates,omitempty"`
	TitleHint  string          `json:"title_hint,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// PropertyResolution is one row per resolution request.
type PropertyResolution struct {
	ID           string            `json:"id"`
	InputAddress string            `json:"input_address"`
	Address      NormalizedAddress `json:"address"`
	Status       ResolutionStatus  `json:"status"`
	OwnerType    OwnerType         `json:"owner_type"`
	Result       *ResolutionResult `json:"result,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
