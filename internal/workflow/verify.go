package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/verifier"
)

// handleCompanyVerify is the live fallback for corporate ownership: when the
// bulk dataset had no row, a company whose registered address canonically
// matches the target settles the resolution as corporate.
func (o *Orchestrator) handleCompanyVerify(ctx context.Context, job *model.JobRecord) error {
	payload, err := decodePayload[companyVerifyPayload](job)
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

	norm := address.Normalize(address.Parse(payload.Snippet))
	if norm.CanonicalKey != res.Address.CanonicalKey || res.Address.CanonicalKey == "" {
		return o.complete(ctx, job, &jobOutput{
			Notes: []string{fmt.Sprintf("company %s not at target address", payload.CompanyNumber)},
		})
	}

	zap.L().Info("corporate owner matched from live registry",
		zap.String("resolution_id", res.ID),
		zap.String("company_number", payload.CompanyNumber))

	err = o.store.SetResolutionResult(ctx, res.ID,
		model.ResolutionCorporate, model.OwnerCorporate,
		&model.ResolutionResult{
			Corporate: &model.CorporateOwner{
				OwnerName:     payload.CompanyName,
				CompanyNumber: payload.CompanyNumber,
				MatchReason:   "registered address canonical key equal",
			},
		})
	if err != nil {
		return err
	}

	// Ownership is settled, so still-queued occupant work is moot. Running
	// siblings finish on their own; they observe the terminal status.
	for _, name := range []string{"officer_enum", "site_verify", "person_verify"} {
		if _, err := o.store.CancelPendingJobs(ctx, job.RootID, name, job.ID); err != nil {
			return err
		}
	}

	return o.complete(ctx, job, &jobOutput{
		Notes: []string{"corporate owner from live registry: " + payload.CompanyName},
	})
}

// handleSiteVerify checks whether a caller-supplied host belongs to the
// company associated with the property.
func (o *Orchestrator) handleSiteVerify(ctx context.Context, job *model.JobRecord) error {
	payload, err := decodePayload[siteVerifyPayload](job)
	if err != nil {
		return err
	}
	res, err := o.store.GetResolution(ctx, payload.ResolutionID)
	if err != nil {
		return err
	}
	if res.Status.Terminal() || o.verify == nil {
		return o.complete(ctx, job, nil)
	}

	verdict, err := o.verify.VerifySite(ctx, payload.Host, payload.CompanyName)
	if err != nil {
		return err
	}

	zap.L().Info("site verified",
		zap.String("resolution_id", res.ID),
		zap.String("host", payload.Host),
		zap.Bool("is_match", verdict.IsMatch),
		zap.Float64("confidence", verdict.Confidence))

	return o.complete(ctx, job, &jobOutput{
		SiteVerdicts: []siteVerdict{{
			Host:       payload.Host,
			IsMatch:    verdict.IsMatch,
			Confidence: verdict.Confidence,
			Reason:     verdict.Reason,
		}},
	})
}

// handlePersonVerify asks the verification service whether a review-band
// candidate is the likely owner. A verdict at or above the cancel
// confidence makes the remaining queued verifications for this root moot.
func (o *Orchestrator) handlePersonVerify(ctx context.Context, job *model.JobRecord) error {
	payload, err := decodePayload[personVerifyPayload](job)
	if err != nil {
		return err
	}
	res, err := o.store.GetResolution(ctx, payload.ResolutionID)
	if err != nil {
		return err
	}
	if res.Status.Terminal() || o.verify == nil {
		return o.complete(ctx, job, nil)
	}

	verdict, err := o.verify.VerifyPerson(ctx, verifier.PersonQuery{
		FullName: payload.FullName,
		Address:  displayLine(res.Address) + ", " + res.Address.Postcode,
		Evidence: payload.Evidence,
	})
	if err != nil {
		return err
	}

	log := zap.L().With(
		zap.String("resolution_id", res.ID),
		zap.String("candidate", payload.FullName))
	log.Info("person verified",
		zap.Bool("is_owner", verdict.IsOwner),
		zap.Float64("confidence", verdict.Confidence))

	if verdict.IsOwner && verdict.Confidence >= o.cfg.CancelConfidence {
		n, err := o.store.CancelPendingJobs(ctx, job.RootID, "person_verify", job.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("cancelled queued sibling verifications", zap.Int("cancelled", n))
		}
	}

	return o.complete(ctx, job, &jobOutput{
		PersonVerdicts: []personVerdict{{
			NameKey:    payload.NameKey,
			FullName:   payload.FullName,
			IsOwner:    verdict.IsOwner,
			Confidence: verdict.Confidence,
			Reason:     verdict.Reason,
		}},
	})
}
