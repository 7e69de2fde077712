package export

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/pkg/salesforce"
)

// SalesforceSink upserts leads as Salesforce Lead records, matched on
// street and postcode.
type SalesforceSink struct {
	Client salesforce.Client
}

func (s *SalesforceSink) Push(ctx context.Context, leads []Lead) error {
	created, updated := 0, 0
	var toInsert []map[string]any

	for _, lead := range leads {
		fields := leadFields(lead)

		existing, err := salesforce.FindLeadByAddress(ctx, s.Client, lead.Address, lead.Postcode)
		if err != nil {
			return eris.Wrapf(err, "export: look up sf lead %s", lead.ResolutionID)
		}
		if existing != nil {
			if err := salesforce.UpdateLead(ctx, s.Client, existing.ID, fields); err != nil {
				return eris.Wrapf(err, "export: update sf lead %s", lead.ResolutionID)
			}
			updated++
			continue
		}
		toInsert = append(toInsert, fields)
	}

	if len(toInsert) > 0 {
		results, err := salesforce.BulkInsertLeads(ctx, s.Client, toInsert)
		if err != nil {
			return eris.Wrap(err, "export: bulk insert sf leads")
		}
		for _, r := range results {
			if !r.Success {
				return eris.Errorf("export: sf lead insert failed: %s", strings.Join(r.Errors, "; "))
			}
			created++
		}
	}

	zap.L().Info("salesforce leads pushed", zap.Int("created", created), zap.Int("updated", updated))
	return nil
}

// leadFields maps a lead onto the standard Salesforce Lead object. The
// owner's surname stands in for LastName; Salesforce requires it non-empty.
func leadFields(lead Lead) map[string]any {
	fields := map[string]any{
		"LastName":    surname(lead.ownerLabel()),
		"Company":     companyLabel(lead),
		"Street":      lead.Address,
		"PostalCode":  lead.Postcode,
		"Country":     "United Kingdom",
		"LeadSource":  "Owner Resolution",
		"Description": lead.Notes,
	}
	return fields
}

func companyLabel(lead Lead) string {
	if lead.CompanyNo != "" {
		return lead.OwnerName
	}
	return "Private Owner"
}

func surname(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "Unknown"
	}
	return parts[len(parts)-1]
}
