package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// handleFinalize closes a root: it folds every recorded output, scores the
// merged pool, persists the audit trail, and writes the terminal status.
// Finalize never fans out, so it completes through the pool, not the
// barrier.
func (o *Orchestrator) handleFinalize(ctx context.Context, job *model.JobRecord) error {
	payload, err := decodePayload[resolvePayload](job)
	if err != nil {
		return err
	}
	res, err := o.store.GetResolution(ctx, payload.ResolutionID)
	if err != nil {
		return err
	}
	if res.Status.Terminal() {
		// A corporate short-circuit or live-registry match already settled
		// this one; the finalize job only drains the ledger.
		return nil
	}

	fr, err := o.fold(ctx, job.RootID)
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("resolution_id", res.ID))

	if len(fr.pool) == 0 {
		log.Info("no public data found")
		return o.store.SetResolutionResult(ctx, res.ID,
			model.ResolutionNoPublicData, model.OwnerUnknown,
			&model.ResolutionResult{Notes: strings.Join(fr.notes, "; ")})
	}

	scores := o.scorePool(fr)
	if err := o.store.SaveCandidateScores(ctx, res.ID, scores); err != nil {
		return err
	}

	best := scores[0]
	for _, score := range scores {
		if score.Rank == 1 {
			best = score
			break
		}
	}

	result := &model.ResolutionResult{
		BestName:   best.FullName,
		BestScore:  best.Total,
		Candidates: scores,
		Notes:      strings.Join(fr.notes, "; "),
	}

	// An accept-band score only resolves when the winner is actually listed
	// at the property on the open register; otherwise a positive verification
	// verdict has to carry it. Registry filings alone stay in the review
	// band however high they score.
	status := model.ResolutionNeedsTitle
	ownerType := model.OwnerUnknown
	switch {
	case o.confirmedByVerdict(fr, best.NameKey),
		best.Total >= o.cfg.AcceptThreshold && onOpenRegister(fr, best.NameKey):
		status = model.ResolutionResolved
		ownerType = model.OwnerIndividual
	case best.Total >= o.cfg.ReviewThreshold:
		status = model.ResolutionNeedsConfirmation
		ownerType = model.OwnerIndividual
		if best.Total >= o.cfg.AcceptThreshold {
			result.Notes = appendNote(result.Notes,
				fmt.Sprintf("best candidate %q scored %.2f without open-register corroboration", best.FullName, best.Total))
		}
	default:
		result.Notes = appendNote(result.Notes,
			fmt.Sprintf("best candidate %q scored %.2f, below review threshold", best.FullName, best.Total))
	}

	log.Info("resolution finalized",
		zap.String("status", string(status)),
		zap.String("best_name", best.FullName),
		zap.Float64("best_score", best.Total),
		zap.Int("candidates", len(scores)))

	return o.store.SetResolutionResult(ctx, res.ID, status, ownerType, result)
}

// confirmedByVerdict reports whether the candidate holds a positive
// verification verdict at or above the confirm confidence.
func (o *Orchestrator) confirmedByVerdict(fr *foldResult, nameKey string) bool {
	for _, v := range fr.personVerdicts {
		if v.NameKey == nameKey && v.IsOwner && v.Confidence >= o.cfg.ConfirmConfidence {
			return true
		}
	}
	return false
}

// onOpenRegister reports whether the candidate's merged evidence includes an
// open-register listing at the property.
func onOpenRegister(fr *foldResult, nameKey string) bool {
	for _, c := range fr.pool {
		if c.NameKey == nameKey {
			return c.HasSource(model.SourceOpenRegister)
		}
	}
	return false
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + "; " + extra
}
