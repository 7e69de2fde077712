package queue

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
)

// Spec describes one unit of work to enqueue. Unit parts plus the queue
// determine the job id; see JobID.
type Spec struct {
	Queue    string
	Name     string
	Unit     []string
	Payload  any
	RootID   string // empty for a root job: the job becomes its own root
	ParentID string
}

// Enqueuer writes jobs to the ledger.
type Enqueuer struct {
	store store.Store
}

func NewEnqueuer(s store.Store) *Enqueuer {
	return &Enqueuer{store: s}
}

// Enqueue inserts the job and returns its id and whether a new row was
// created. A duplicate id reports inserted=false without error.
func (e *Enqueuer) Enqueue(ctx context.Context, spec Spec) (string, bool, error) {
	id := JobID(spec.Queue, spec.Unit...)

	var payload json.RawMessage
	if spec.Payload != nil {
		raw, err := json.Marshal(spec.Payload)
		if err != nil {
			return "", false, eris.Wrapf(err, "queue: marshal payload for %s", id)
		}
		payload = raw
	}

	rootID := spec.RootID
	if rootID == "" {
		rootID = id
	}

	inserted, err := e.store.EnqueueJob(ctx, model.JobRecord{
		ID:       id,
		Queue:    spec.Queue,
		Name:     spec.Name,
		Payload:  payload,
		RootID:   rootID,
		ParentID: spec.ParentID,
	})
	if err != nil {
		return "", false, err
	}

	if inserted {
		zap.L().Debug("job enqueued",
			zap.String("job_id", id),
			zap.String("queue", spec.Queue),
			zap.String("root_id", rootID))
	} else {
		zap.L().Debug("job already enqueued", zap.String("job_id", id))
	}
	return id, inserted, nil
}
