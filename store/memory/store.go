// Package memory provides the in-memory job store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
)

var _ job.Store = (*Store)(nil)

// Store is the authoritative in-memory job table. Safe for concurrent
// access; every method hands out copies.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*job.Job)}
}

// InsertJob adds a new job.
func (m *Store) InsertJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return evalqueue.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, evalqueue.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListJobsByUser returns the user's jobs ordered by descending position.
func (m *Store) ListJobsByUser(_ context.Context, userID string) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.UserID == userID {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Position > result[k].Position
	})
	return result, nil
}

// ListPendingJobs returns pending jobs ordered by ascending position.
func (m *Store) ListPendingJobs(_ context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.State == job.StatePending {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Position < result[k].Position
	})
	return result, nil
}

// ListJobs returns every job ordered by ascending position.
func (m *Store) ListJobs(_ context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		result = append(result, j.Clone())
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Position < result[k].Position
	})
	return result, nil
}

// UpdateJob runs fn against a scratch copy of the stored job and swaps
// it in only if fn succeeds, so a failed mutator leaves no trace.
func (m *Store) UpdateJob(_ context.Context, jobID id.JobID, fn job.Mutator) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	current, ok := m.jobs[key]
	if !ok {
		return nil, evalqueue.ErrJobNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.UpdatedAt = time.Now().UTC()
	m.jobs[key] = next
	return next.Clone(), nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return evalqueue.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.UserID != "" && j.UserID != opts.UserID {
			continue
		}
		count++
	}
	return count, nil
}

// Clear removes every job.
func (m *Store) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs = make(map[string]*job.Job)
	return nil
}
