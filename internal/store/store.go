// Package store persists resolutions, candidate scores, the job ledger, and
// the bulk corporate-ownership dataset. Postgres backs production; SQLite
// backs single-node deployments and local work.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = eris.New("store: not found")

// ResolutionFilter specifies criteria for listing resolutions.
type ResolutionFilter struct {
	Status model.ResolutionStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the owner-resolution core.
type Store interface {
	// Resolutions
	CreateResolution(ctx context.Context, res *model.PropertyResolution) error
	UpdateResolutionStatus(ctx context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType) error
	SetResolutionResult(ctx context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType, result *model.ResolutionResult) error
	GetResolution(ctx context.Context, id string) (*model.PropertyResolution, error)
	ListResolutions(ctx context.Context, filter ResolutionFilter) ([]model.PropertyResolution, error)
	// SaveCandidateScores writes one row per candidate and one per signal
	// for auditability.
	SaveCandidateScores(ctx context.Context, resolutionID string, scores []model.OccupantScore) error

	// Job ledger. EnqueueJob inserts with the job's deterministic id as the
	// primary key and reports whether a row was actually inserted:
	// re-enqueueing an existing id is a no-op and returns false.
	EnqueueJob(ctx context.Context, job model.JobRecord) (bool, error)
	// ClaimJob atomically moves the oldest pending job on the queue to
	// running and returns it, or (nil, nil) when the queue is empty.
	ClaimJob(ctx context.Context, queue string) (*model.JobRecord, error)
	// CompleteJob marks a running job completed, recording its output when
	// non-nil. Completing an already finished job is a no-op, so a handler
	// that completed its own job is safe against the pool's completion pass.
	CompleteJob(ctx context.Context, id string, output []byte) error
	FailJob(ctx context.Context, id string, errMsg string) error
	// CancelPendingJobs cancels still-pending jobs under the root with the
	// given unit-of-work name, excluding excludeID. Running jobs are left
	// alone: cancellation is advisory for queued work only.
	CancelPendingJobs(ctx context.Context, rootID, name, excludeID string) (int, error)
	// CountActiveJobs counts pending+running jobs under the root, excluding
	// excludeID. Barrier checks call this after marking their own job
	// completed.
	CountActiveJobs(ctx context.Context, rootID, excludeID string) (int, error)
	GetJob(ctx context.Context, id string) (*model.JobRecord, error)
	// ListJobsByRoot returns every job under the root in creation order.
	ListJobsByRoot(ctx context.Context, rootID string) ([]model.JobRecord, error)

	// Corporate-ownership dataset. ReplaceOwnershipDataset swaps the rows
	// for a dataset label in one transaction (delete, bulk insert, update
	// meta) so readers never observe a half-replaced dataset.
	ReplaceOwnershipDataset(ctx context.Context, dataset string, rows []model.CorporateOwnerRecord) error
	OwnershipByPostcode(ctx context.Context, postcode string) ([]model.CorporateOwnerRecord, error)
	GetDatasetMeta(ctx context.Context, dataset string) (*model.DatasetMeta, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
