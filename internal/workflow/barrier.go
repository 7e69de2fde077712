package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/occupant"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/queue"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/rubric"
)

// complete records the job's output and runs the fan-in barrier: the last
// job out under a root advances the pipeline. The barrier is re-entrant and
// exactly-once in effect because every enqueue it performs uses a
// deterministic id; two racers produce identical no-op inserts.
func (o *Orchestrator) complete(ctx context.Context, job *model.JobRecord, out *jobOutput) error {
	var raw []byte
	if out != nil {
		encoded, err := json.Marshal(out)
		if err != nil {
			return eris.Wrapf(err, "workflow: encode %s output", job.ID)
		}
		raw = encoded
	}
	if err := o.store.CompleteJob(ctx, job.ID, raw); err != nil {
		return err
	}
	return o.barrier(ctx, job)
}

// barrier is the fan-in check shared by the completion and failure paths:
// once the root has no other active jobs, whoever ran last advances it.
func (o *Orchestrator) barrier(ctx context.Context, job *model.JobRecord) error {
	active, err := o.store.CountActiveJobs(ctx, job.RootID, job.ID)
	if err != nil {
		return err
	}
	if active > 0 {
		return nil
	}
	return o.advance(ctx, job)
}

// JobFailed is the worker pool's failure callback. A job that errored out
// never recorded an output, but the root must still drain to a terminal
// status, so the same barrier runs here.
func (o *Orchestrator) JobFailed(ctx context.Context, job *model.JobRecord) {
	if err := o.barrier(ctx, job); err != nil {
		zap.L().Error("barrier after job failure",
			zap.String("job_id", job.ID),
			zap.String("root_id", job.RootID),
			zap.Error(err))
	}
}

// advance runs with the root's work drained: it folds the recorded outputs,
// enqueues the verification wave if one is still owed, and otherwise closes
// the root with its finalize job.
func (o *Orchestrator) advance(ctx context.Context, job *model.JobRecord) error {
	resID := resolutionIDFromRoot(job.RootID)
	res, err := o.store.GetResolution(ctx, resID)
	if err != nil {
		return err
	}

	inserted := 0
	if !res.Status.Terminal() && o.verify != nil {
		fr, err := o.fold(ctx, job.RootID)
		if err != nil {
			return err
		}
		inserted, err = o.enqueueVerificationWave(ctx, job, res, fr)
		if err != nil {
			return err
		}
	}
	if inserted > 0 {
		zap.L().Debug("verification wave started",
			zap.String("resolution_id", resID),
			zap.Int("jobs", inserted))
		return nil
	}

	// Re-check after the idempotent wave attempt: a racing sibling may have
	// inserted the wave first, in which case its jobs are active now and
	// their own barrier will close the root.
	active, err := o.store.CountActiveJobs(ctx, job.RootID, job.ID)
	if err != nil {
		return err
	}
	if active > 0 {
		return nil
	}

	_, _, err = o.enq.Enqueue(ctx, queue.Spec{
		Queue:    model.QueueFinalize,
		Name:     "finalize",
		Unit:     []string{resID},
		RootID:   job.RootID,
		ParentID: job.ID,
		Payload:  resolvePayload{ResolutionID: resID},
	})
	return err
}

// enqueueVerificationWave enqueues person verifications for unverified
// candidates at or above the review threshold. Accept-band candidates are
// included: a top score alone never settles a resolution without either
// open-register presence or a positive verdict. Deterministic ids make the
// wave a one-shot: a re-run re-enqueues the same ids and inserts nothing.
func (o *Orchestrator) enqueueVerificationWave(ctx context.Context, job *model.JobRecord, res *model.PropertyResolution, fr *foldResult) (int, error) {
	scores := o.scorePool(fr)
	verified := make(map[string]bool, len(fr.personVerdicts))
	for _, v := range fr.personVerdicts {
		verified[v.NameKey] = true
	}
	evidence := evidenceByKey(scores)

	inserted := 0
	for _, score := range scores {
		if inserted >= o.cfg.MaxPersonVerifications {
			break
		}
		if score.Total < o.cfg.ReviewThreshold {
			continue
		}
		if verified[score.NameKey] {
			continue
		}

		_, ok, err := o.enq.Enqueue(ctx, queue.Spec{
			Queue:    model.QueuePersonVerify,
			Name:     "person_verify",
			Unit:     []string{res.ID, score.NameKey},
			RootID:   job.RootID,
			ParentID: job.ID,
			Payload: personVerifyPayload{
				ResolutionID: res.ID,
				NameKey:      score.NameKey,
				FullName:     score.FullName,
				Evidence:     evidence[score.NameKey],
			},
		})
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// foldResult is the union of all recorded job outputs under one root.
type foldResult struct {
	pool           []model.OccupantCandidate
	latestSaleYear *int
	confirmed      []string
	personVerdicts []personVerdict
	siteVerdicts   []siteVerdict
	notes          []string
}

// fold reads the root's ledger and unions the completed outputs. Merging is
// order-independent, so it does not matter which jobs finished when.
func (o *Orchestrator) fold(ctx context.Context, rootID string) (*foldResult, error) {
	jobs, err := o.store.ListJobsByRoot(ctx, rootID)
	if err != nil {
		return nil, err
	}

	fr := &foldResult{}
	var raw []model.OccupantCandidate
	for _, j := range jobs {
		if j.Status != model.JobCompleted || len(j.Output) == 0 {
			continue
		}
		var out jobOutput
		if err := json.Unmarshal(j.Output, &out); err != nil {
			return nil, eris.Wrapf(err, "workflow: decode output of %s", j.ID)
		}
		raw = append(raw, out.Pool...)
		if out.LatestSaleYear != nil &&
			(fr.latestSaleYear == nil || *out.LatestSaleYear > *fr.latestSaleYear) {
			fr.latestSaleYear = out.LatestSaleYear
		}
		fr.confirmed = append(fr.confirmed, out.Confirmed...)
		fr.personVerdicts = append(fr.personVerdicts, out.PersonVerdicts...)
		fr.siteVerdicts = append(fr.siteVerdicts, out.SiteVerdicts...)
		fr.notes = append(fr.notes, out.Notes...)
	}

	fr.pool = occupant.MergeAll(raw)

	// A confident positive verdict promotes the candidate to the
	// confirmed-match set for rescoring.
	for _, v := range fr.personVerdicts {
		if !v.IsOwner || v.Confidence < o.cfg.ConfirmConfidence {
			continue
		}
		fr.confirmed = append(fr.confirmed, v.FullName)
		for i := range fr.pool {
			if fr.pool[i].NameKey == v.NameKey {
				fr.pool[i] = occupant.Merge(fr.pool[i], model.OccupantCandidate{
					NameKey:  v.NameKey,
					FullName: v.FullName,
					Sources:  []string{model.SourcePersonVerify},
					Tags:     []string{model.TagConfirmedName},
				})
			}
		}
	}
	return fr, nil
}

func (o *Orchestrator) scorePool(fr *foldResult) []model.OccupantScore {
	rctx := rubric.NewContext(fr.pool, fr.confirmed, fr.latestSaleYear)
	return rubric.Score(fr.pool, rctx, o.rubricCfg)
}

// evidenceByKey renders each candidate's fired signals as evidence lines for
// the verification prompt.
func evidenceByKey(scores []model.OccupantScore) map[string][]string {
	out := make(map[string][]string, len(scores))
	for _, score := range scores {
		lines := make([]string, 0, len(score.Signals))
		for _, sig := range score.Signals {
			lines = append(lines, fmt.Sprintf("%s: %s", sig.Label, sig.Reason))
		}
		out[score.NameKey] = lines
	}
	return out
}
