package workflow

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// Job payloads. Every payload carries the resolution id so a handler never
// depends on parsing job ids.

type resolvePayload struct {
	ResolutionID   string   `json:"resolution_id"`
	CompanyName    string   `json:"company_name,omitempty"`
	Hosts          []string `json:"hosts,omitempty"`
	ConfirmedNames []string `json:"confirmed_names,omitempty"`
}

type officerEnumPayload struct {
	ResolutionID  string `json:"resolution_id"`
	CompanyNumber string `json:"company_number"`
	CompanyName   string `json:"company_name,omitempty"`
}

type companyVerifyPayload struct {
	ResolutionID  string `json:"resolution_id"`
	CompanyNumber string `json:"company_number"`
	CompanyName   string `json:"company_name,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
}

type siteVerifyPayload struct {
	ResolutionID string `json:"resolution_id"`
	Host         string `json:"host"`
	CompanyName  string `json:"company_name,omitempty"`
}

type personVerifyPayload struct {
	ResolutionID string   `json:"resolution_id"`
	NameKey      string   `json:"name_key"`
	FullName     string   `json:"full_name"`
	Evidence     []string `json:"evidence,omitempty"`
}

// personVerdict is a recorded person-verification outcome.
type personVerdict struct {
	NameKey    string  `json:"name_key"`
	FullName   string  `json:"full_name"`
	IsOwner    bool    `json:"is_owner"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// siteVerdict is a recorded site-verification outcome.
type siteVerdict struct {
	Host       string  `json:"host"`
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// jobOutput is the contribution a completed job records on its ledger row.
// The fold that runs when the root's work drains unions these across all
// completed jobs; every field is mergeable in any order.
type jobOutput struct {
	Pool           []model.OccupantCandidate `json:"pool,omitempty"`
	LatestSaleYear *int                      `json:"latest_sale_year,omitempty"`
	Confirmed      []string                  `json:"confirmed,omitempty"`
	PersonVerdicts []personVerdict           `json:"person_verdicts,omitempty"`
	SiteVerdicts   []siteVerdict             `json:"site_verdicts,omitempty"`
	Notes          []string                  `json:"notes,omitempty"`
}

func decodePayload[T any](job *model.JobRecord) (T, error) {
	var payload T
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return payload, eris.Wrapf(err, "workflow: decode %s payload", job.Queue)
	}
	return payload, nil
}
