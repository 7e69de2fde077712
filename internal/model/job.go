package model

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a ledger job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Active reports whether the job still counts toward a fan-in barrier.
func (s JobStatus) Active() bool { return s == JobPending || s == JobRunning }

// Queue names for the worker pools.
const (
	QueueResolve       = "resolve"
	QueueOfficerEnum   = "officer_enum"
	QueueCompanyVerify = "company_verify"
	QueueSiteVerify    = "site_verify"
	QueuePersonVerify  = "person_verify"
	QueueFinalize      = "finalize"
)

// JobRecord is one persisted job in the ledger. ID is deterministic from the
// semantic unit of work, so re-enqueueing the same unit is a no-op. Every
// job belongs to exactly one root; RootID is transitively stable across all
// descendants of that root. Output carries the job's contribution to the
// fold that runs when the root's work drains; keeping it on the ledger row
// means concurrent jobs never write shared state.
type JobRecord struct {
	ID       string          `json:"id"`
	Queue    string          `json:"queue"`
	Name     string          `json:"name"`
	Status   JobStatus       `json:"status"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	RootID   string          `json:"root_job_id"`
	ParentID string          `json:"parent_job_id,omitempty"`
	Error    string          `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
