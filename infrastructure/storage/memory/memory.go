// Package memory provides the in-memory reference implementation of the
// persistence boundary. It is the default wiring and the backend used by
// tests; the postgres implementation is interchangeable with it.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// Store implements every store interface over guarded maps.
type Store struct {
	mu            sync.RWMutex
	discrepancies map[string]entity.Discrepancy
	reports       map[string]entity.ReconciliationReport
	jobs          map[string]entity.SyncJob
	operations    map[string]entity.SyncOperation
	conflicts     map[string]entity.Conflict
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		discrepancies: make(map[string]entity.Discrepancy),
		reports:       make(map[string]entity.ReconciliationReport),
		jobs:          make(map[string]entity.SyncJob),
		operations:    make(map[string]entity.SyncOperation),
		conflicts:     make(map[string]entity.Conflict),
	}
}

// SaveDiscrepancies stores a batch of discrepancies.
func (s *Store) SaveDiscrepancies(_ context.Context, discrepancies []entity.Discrepancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range discrepancies {
		s.discrepancies[d.ID] = d
	}
	return nil
}

// GetDiscrepancy returns a discrepancy by id, or nil when unknown.
func (s *Store) GetDiscrepancy(_ context.Context, id string) (*entity.Discrepancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.discrepancies[id]; ok {
		return &d, nil
	}
	return nil, nil
}

// UpdateDiscrepancy replaces a stored discrepancy.
func (s *Store) UpdateDiscrepancy(_ context.Context, d *entity.Discrepancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discrepancies[d.ID] = *d
	return nil
}

// SaveReport stores or replaces a report.
func (s *Store) SaveReport(_ context.Context, report *entity.ReconciliationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = *report
	return nil
}

// GetReport returns a report by id, or nil when unknown.
func (s *Store) GetReport(_ context.Context, id string) (*entity.ReconciliationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.reports[id]; ok {
		return &r, nil
	}
	return nil, nil
}

// ListReports returns reports for an entity type started at or after since,
// newest first.
func (s *Store) ListReports(_ context.Context, entityType entity.EntityType, since time.Time) ([]entity.ReconciliationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reports []entity.ReconciliationReport
	for _, r := range s.reports {
		if r.EntityType == entityType && !r.StartedAt.Before(since) {
			reports = append(reports, r)
		}
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	return reports, nil
}

// SaveJob stores or replaces a job.
func (s *Store) SaveJob(_ context.Context, job *entity.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

// GetJob returns a job by id, or nil when unknown.
func (s *Store) GetJob(_ context.Context, id string) (*entity.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.jobs[id]; ok {
		return &j, nil
	}
	return nil, nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs(_ context.Context) ([]entity.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]entity.SyncJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// SaveOperation stores or replaces an operation.
func (s *Store) SaveOperation(_ context.Context, op *entity.SyncOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[op.ID] = *op
	return nil
}

// GetOperation returns an operation by id, or nil when unknown.
func (s *Store) GetOperation(_ context.Context, id string) (*entity.SyncOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if op, ok := s.operations[id]; ok {
		return &op, nil
	}
	return nil, nil
}

// SaveConflict stores or replaces a conflict.
func (s *Store) SaveConflict(_ context.Context, c *entity.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[c.ID] = *c
	return nil
}

// GetConflict returns a conflict by id, or nil when unknown.
func (s *Store) GetConflict(_ context.Context, id string) (*entity.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conflicts[id]; ok {
		return &c, nil
	}
	return nil, nil
}

// ListConflicts returns conflicts in the given status, oldest first.
func (s *Store) ListConflicts(_ context.Context, status entity.ConflictStatus) ([]entity.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conflicts []entity.Conflict
	for _, c := range s.conflicts {
		if c.Status == status {
			conflicts = append(conflicts, c)
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].CreatedAt.Before(conflicts[j].CreatedAt)
	})
	return conflicts, nil
}
