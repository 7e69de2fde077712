package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/match"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/occupant"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/queue"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/companieshouse"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/landregistry"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/openregister"
)

// handleResolve is the root of the pipeline: corporate short-circuit first,
// then parallel public-data gathering, then enrichment fan-out.
func (o *Orchestrator) handleResolve(ctx context.Context, job *model.JobRecord) error {
	payload, err := decodePayload[resolvePayload](job)
	if err != nil {
		return err
	}
	res, err := o.store.GetResolution(ctx, payload.ResolutionID)
	if err != nil {
		return err
	}
	if res.Status.Terminal() {
		return o.complete(ctx, job, nil)
	}
	log := zap.L().With(zap.String("resolution_id", res.ID))

	// Corporate short-circuit: a dataset match settles ownership without
	// touching any occupant source.
	if res.Address.Postcode != "" {
		rows, err := o.owners.ByPostcode(ctx, res.Address.Postcode)
		if err != nil {
			return err
		}
		if hit := match.Best(res.Address, rows); hit != nil {
			log.Info("corporate owner matched from dataset",
				zap.String("owner", hit.Record.OwnerName),
				zap.Bool("exact_key", hit.ExactKey))
			err := o.store.SetResolutionResult(ctx, res.ID,
				model.ResolutionCorporate, model.OwnerCorporate,
				&model.ResolutionResult{
					Corporate: &model.CorporateOwner{
						OwnerName:     hit.Record.OwnerName,
						CompanyNumber: hit.Record.CompanyNumber,
						Dataset:       hit.Record.Dataset,
						MatchReason:   hit.Reason,
					},
					TitleHint: hit.Record.TitleNumber,
				})
			if err != nil {
				return err
			}
			// Ownership is settled, but the owning company's officers are
			// still worth a contact-enumeration pass.
			if hit.Record.CompanyNumber != "" {
				if _, _, err := o.enq.Enqueue(ctx, queue.Spec{
					Queue:    model.QueueOfficerEnum,
					Name:     "officer_enum",
					Unit:     []string{res.ID, hit.Record.CompanyNumber},
					RootID:   job.RootID,
					ParentID: job.ID,
					Payload: officerEnumPayload{
						ResolutionID:  res.ID,
						CompanyNumber: hit.Record.CompanyNumber,
						CompanyName:   hit.Record.OwnerName,
					},
				}); err != nil {
					return err
				}
			}
			return o.complete(ctx, job, &jobOutput{
				Notes: []string{"corporate owner from dataset: " + hit.Record.OwnerName},
			})
		}
	}

	// No dataset hit: gather the public occupant sources in parallel.
	var (
		occupants   []openregister.Occupant
		hits        []companieshouse.CompanyHit
		officerHits []companieshouse.OfficerHit
		sales       []landregistry.SaleRecord
	)
	line := displayLine(res.Address)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		occupants, err = o.register.Lookup(gctx, line, res.Address.Postcode)
		return err
	})
	g.Go(func() error {
		var err error
		hits, err = o.registry.SearchCompanies(gctx, line+" "+res.Address.Postcode)
		return err
	})
	g.Go(func() error {
		// Caller-confirmed names are worth an officer search: a directorship
		// filed at this postcode adds registry provenance to the candidate.
		for _, name := range payload.ConfirmedNames {
			found, err := o.registry.SearchOfficers(gctx, name)
			if err != nil {
				return err
			}
			officerHits = append(officerHits, found...)
		}
		return nil
	})
	g.Go(func() error {
		if res.Address.Postcode == "" {
			return nil
		}
		var err error
		sales, err = o.land.PricePaidByPostcode(gctx, res.Address.Postcode)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out := &jobOutput{Confirmed: payload.ConfirmedNames}
	for _, occ := range occupants {
		out.Pool = append(out.Pool, occupant.FromOpenRegister(occ))
	}
	for _, name := range payload.ConfirmedNames {
		out.Pool = append(out.Pool, model.OccupantCandidate{
			NameKey:  occupant.NameKey(name),
			FullName: strings.TrimSpace(name),
			Sources:  []string{model.SourceConfirmedList},
			Tags:     []string{model.TagConfirmedName},
		})
	}
	for _, oh := range officerHits {
		if !snippetMatchesPostcode(oh.AddressSnippet, res.Address.Postcode) {
			continue
		}
		out.Pool = append(out.Pool, occupant.FromOfficerSearch(oh))
	}
	for _, sale := range sales {
		year := sale.Year()
		if year > 0 && (out.LatestSaleYear == nil || year > *out.LatestSaleYear) {
			y := year
			out.LatestSaleYear = &y
		}
	}

	// Registry fan-out: companies the free-text search places at this
	// postcode get their officers and PSCs enumerated. When the dataset had
	// nothing, the same hits double as live corporate-owner candidates.
	fanned := 0
	for _, hit := range hits {
		if fanned >= o.cfg.MaxCompanies {
			break
		}
		if hit.CompanyNumber == "" || !snippetMatchesPostcode(hit.AddressSnippet, res.Address.Postcode) {
			continue
		}
		fanned++

		if _, _, err := o.enq.Enqueue(ctx, queue.Spec{
			Queue:    model.QueueOfficerEnum,
			Name:     "officer_enum",
			Unit:     []string{res.ID, hit.CompanyNumber},
			RootID:   job.RootID,
			ParentID: job.ID,
			Payload: officerEnumPayload{
				ResolutionID:  res.ID,
				CompanyNumber: hit.CompanyNumber,
				CompanyName:   hit.Title,
			},
		}); err != nil {
			return err
		}

		if _, _, err := o.enq.Enqueue(ctx, queue.Spec{
			Queue:    model.QueueCompanyVerify,
			Name:     "company_verify",
			Unit:     []string{res.ID, hit.CompanyNumber},
			RootID:   job.RootID,
			ParentID: job.ID,
			Payload: companyVerifyPayload{
				ResolutionID:  res.ID,
				CompanyNumber: hit.CompanyNumber,
				CompanyName:   hit.Title,
				Snippet:       hit.AddressSnippet,
			},
		}); err != nil {
			return err
		}
	}

	// Caller-supplied hosts get a site verification pass when a company
	// name is available to check them against.
	companyName := payload.CompanyName
	if companyName == "" && fanned > 0 {
		companyName = firstMatchingCompany(hits, res.Address.Postcode)
	}
	if o.verify != nil && companyName != "" {
		for _, host := range payload.Hosts {
			if _, _, err := o.enq.Enqueue(ctx, queue.Spec{
				Queue:    model.QueueSiteVerify,
				Name:     "site_verify",
				Unit:     []string{res.ID, host},
				RootID:   job.RootID,
				ParentID: job.ID,
				Payload: siteVerifyPayload{
					ResolutionID: res.ID,
					Host:         host,
					CompanyName:  companyName,
				},
			}); err != nil {
				return err
			}
		}
	}

	log.Info("public data gathered",
		zap.Int("register_occupants", len(occupants)),
		zap.Int("company_hits", len(hits)),
		zap.Int("companies_fanned_out", fanned),
		zap.Int("sales", len(sales)))

	out.Notes = append(out.Notes, fmt.Sprintf("register=%d companies=%d", len(occupants), fanned))
	return o.complete(ctx, job, out)
}

// snippetMatchesPostcode checks that a search-result address snippet refers
// to the target postcode. Search results are free text with arbitrary
// postcode spacing, so both sides are reduced to bare alphanumerics before
// the containment check.
func snippetMatchesPostcode(snippet, postcode string) bool {
	target := address.NormalizePostcode(postcode)
	if target == "" {
		return false
	}
	return strings.Contains(address.NormalizePostcode(snippet), target)
}

func firstMatchingCompany(hits []companieshouse.CompanyHit, postcode string) string {
	for _, hit := range hits {
		if snippetMatchesPostcode(hit.AddressSnippet, postcode) {
			return hit.Title
		}
	}
	return ""
}
