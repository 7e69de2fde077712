package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	resolutions map[string]*model.PropertyResolution
	scores      map[string][]model.OccupantScore
	jobs        map[string]*model.JobRecord
	jobSeq      int64
	owners      map[string][]model.CorporateOwnerRecord
	meta        map[string]*model.DatasetMeta
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		resolutions: make(map[string]*model.PropertyResolution),
		scores:      make(map[string][]model.OccupantScore),
		jobs:        make(map[string]*model.JobRecord),
		owners:      make(map[string][]model.CorporateOwnerRecord),
		meta:        make(map[string]*model.DatasetMeta),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateResolution(_ context.Context, res *model.PropertyResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolutions[res.ID]; ok {
		return eris.Errorf("memory: resolution %s already exists", res.ID)
	}
	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now
	clone := *res
	s.resolutions[res.ID] = &clone
	return nil
}

func (s *MemoryStore) UpdateResolutionStatus(_ context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resolutions[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "resolution %s", id)
	}
	res.Status = status
	res.OwnerType = ownerType
	res.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetResolutionResult(_ context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType, result *model.ResolutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resolutions[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "resolution %s", id)
	}
	res.Result = result
	res.Status = status
	res.OwnerType = ownerType
	res.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetResolution(_ context.Context, id string) (*model.PropertyResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resolutions[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "resolution %s", id)
	}
	clone := *res
	return &clone, nil
}

func (s *MemoryStore) ListResolutions(_ context.Context, filter ResolutionFilter) ([]model.PropertyResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.PropertyResolution
	for _, res := range s.resolutions {
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		out = append(out, *res)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveCandidateScores(_ context.Context, resolutionID string, scores []model.OccupantScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[resolutionID] = append(s.scores[resolutionID], scores...)
	return nil
}

// CandidateScores returns saved scores for assertions in tests.
func (s *MemoryStore) CandidateScores(resolutionID string) []model.OccupantScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OccupantScore(nil), s.scores[resolutionID]...)
}

func (s *MemoryStore) EnqueueJob(_ context.Context, job model.JobRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	job.Status = model.JobPending
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobSeq++
	// Sequence breaks creation-time ties so claim order is deterministic.
	job.CreatedAt = job.CreatedAt.Add(time.Duration(s.jobSeq) * time.Nanosecond)
	clone := job
	s.jobs[job.ID] = &clone
	return true, nil
}

func (s *MemoryStore) ClaimJob(_ context.Context, queue string) (*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *model.JobRecord
	for _, job := range s.jobs {
		if job.Queue != queue || job.Status != model.JobPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.Status = model.JobRunning
	oldest.StartedAt = &now
	oldest.UpdatedAt = now
	clone := *oldest
	return &clone, nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, id string, output []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "job %s", id)
	}
	if job.Status != model.JobRunning {
		return nil
	}
	now := time.Now().UTC()
	job.Status = model.JobCompleted
	if output != nil {
		job.Output = append([]byte(nil), output...)
	}
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *MemoryStore) FailJob(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "job %s", id)
	}
	now := time.Now().UTC()
	job.Status = model.JobFailed
	job.Error = errMsg
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CancelPendingJobs(_ context.Context, rootID, name, excludeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	now := time.Now().UTC()
	for _, job := range s.jobs {
		if job.RootID != rootID || job.Name != name || job.ID == excludeID {
			continue
		}
		if job.Status != model.JobPending {
			continue
		}
		job.Status = model.JobCancelled
		job.FinishedAt = &now
		job.UpdatedAt = now
		cancelled++
	}
	return cancelled, nil
}

func (s *MemoryStore) CountActiveJobs(_ context.Context, rootID, excludeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, job := range s.jobs {
		if job.RootID != rootID || job.ID == excludeID {
			continue
		}
		if job.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	clone := *job
	return &clone, nil
}

func (s *MemoryStore) ListJobsByRoot(_ context.Context, rootID string) ([]model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.JobRecord
	for _, job := range s.jobs {
		if job.RootID == rootID {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ReplaceOwnershipDataset(_ context.Context, dataset string, records []model.CorporateOwnerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[dataset] = append([]model.CorporateOwnerRecord(nil), records...)
	s.meta[dataset] = &model.DatasetMeta{
		Dataset:     dataset,
		RowCount:    int64(len(records)),
		RefreshedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) OwnershipByPostcode(_ context.Context, postcode string) ([]model.CorporateOwnerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.CorporateOwnerRecord
	for _, records := range s.owners {
		for _, r := range records {
			if r.Postcode == postcode {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) GetDatasetMeta(_ context.Context, dataset string) (*model.DatasetMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.meta[dataset]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "dataset %s", dataset)
	}
	clone := *meta
	return &clone, nil
}
