package workflow

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/occupant"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/companieshouse"
)

// handleOfficerEnum enumerates a company's officers and PSCs and projects
// them into occupant candidates. A person whose filed service address
// matches the target is anchor evidence; everyone else still enters the
// pool as weak evidence and merges with register entries by name.
func (o *Orchestrator) handleOfficerEnum(ctx context.Context, job *model.JobRecord) error {
	payload, err := decodePayload[officerEnumPayload](job)
	if err != nil {
		return err
	}
	res, err := o.store.GetResolution(ctx, payload.ResolutionID)
	if err != nil {
		return err
	}
	// Corporate resolutions still enumerate: the owning company's people are
	// the contact surface. Any other terminal status just drains.
	if res.Status.Terminal() && res.Status != model.ResolutionCorporate {
		return o.complete(ctx, job, nil)
	}

	var (
		officers []companieshouse.Officer
		pscs     []companieshouse.PSC
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		officers, err = o.registry.GetOfficers(gctx, payload.CompanyNumber)
		return err
	})
	g.Go(func() error {
		var err error
		pscs, err = o.registry.GetPSCs(gctx, payload.CompanyNumber)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out := &jobOutput{}
	anchored := 0
	for _, officer := range officers {
		matched := occupant.AddressMatches(officer.Address, res.Address)
		if matched {
			anchored++
		}
		out.Pool = append(out.Pool,
			occupant.FromOfficer(officer, payload.CompanyNumber, payload.CompanyName, matched))
	}
	for _, psc := range pscs {
		matched := occupant.AddressMatches(psc.Address, res.Address)
		if matched {
			anchored++
		}
		out.Pool = append(out.Pool,
			occupant.FromPSC(psc, payload.CompanyName, matched))
	}

	zap.L().Info("registry enumeration complete",
		zap.String("resolution_id", res.ID),
		zap.String("company_number", payload.CompanyNumber),
		zap.Int("officers", len(officers)),
		zap.Int("pscs", len(pscs)),
		zap.Int("address_anchored", anchored))

	return o.complete(ctx, job, out)
}
