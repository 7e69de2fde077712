// Package export projects finished resolutions into leads and pushes them
// to the configured sinks: an XLSX workbook, a Notion lead database, or
// Salesforce.
package export

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
)

// Lead is the flat, sink-agnostic projection of one finished resolution.
type Lead struct {
	ResolutionID string  `json:"resolution_id"`
	Address      string  `json:"address"`
	Postcode     string  `json:"postcode"`
	Status       string  `json:"status"`
	OwnerType    string  `json:"owner_type"`
	OwnerName    string  `json:"owner_name"`
	CompanyNo    string  `json:"company_number,omitempty"`
	Score        float64 `json:"score,omitempty"`
	TitleHint    string  `json:"title_hint,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// Sink receives a batch of leads.
type Sink interface {
	Push(ctx context.Context, leads []Lead) error
}

// exportable reports whether a resolution produced something worth pushing.
// Failed and still-running resolutions never leave the system, and neither
// do the ones where no public data turned up.
func exportable(status model.ResolutionStatus) bool {
	switch status {
	case model.ResolutionCorporate, model.ResolutionResolved,
		model.ResolutionNeedsConfirmation, model.ResolutionNeedsTitle:
		return true
	}
	return false
}

// BuildLeads lists resolutions matching the filter and projects the
// exportable ones.
func BuildLeads(ctx context.Context, s store.Store, filter store.ResolutionFilter) ([]Lead, error) {
	resolutions, err := s.ListResolutions(ctx, filter)
	if err != nil {
		return nil, err
	}

	leads := make([]Lead, 0, len(resolutions))
	for _, res := range resolutions {
		if !exportable(res.Status) {
			continue
		}
		leads = append(leads, project(res))
	}

	zap.L().Info("leads built",
		zap.Int("resolutions", len(resolutions)),
		zap.Int("leads", len(leads)))
	return leads, nil
}

func project(res model.PropertyResolution) Lead {
	lead := Lead{
		ResolutionID: res.ID,
		Address:      addressLine(res.Address),
		Postcode:     res.Address.Postcode,
		Status:       string(res.Status),
		OwnerType:    string(res.OwnerType),
	}
	if res.Result == nil {
		return lead
	}

	lead.TitleHint = res.Result.TitleHint
	lead.Notes = res.Result.Notes
	if res.Result.Corporate != nil {
		lead.OwnerName = res.Result.Corporate.OwnerName
		lead.CompanyNo = res.Result.Corporate.CompanyNumber
	} else {
		lead.OwnerName = res.Result.BestName
		lead.Score = res.Result.BestScore
	}
	return lead
}

// addressLine renders the normalized address as a single display line.
func addressLine(a model.NormalizedAddress) string {
	var parts []string
	if a.HasSAON() {
		parts = append(parts, "Flat "+a.SAON)
	}
	building := strings.TrimSpace(a.PAON + " " + a.Street)
	if building != "" {
		parts = append(parts, building)
	}
	if a.Town != "" {
		parts = append(parts, a.Town)
	}
	if a.Postcode != "" {
		parts = append(parts, a.Postcode)
	}
	return strings.Join(parts, ", ")
}

// ownerLabel is the name rendered into sinks that require one.
func (l Lead) ownerLabel() string {
	if l.OwnerName != "" {
		return l.OwnerName
	}
	return fmt.Sprintf("Unknown owner (%s)", l.Status)
}
