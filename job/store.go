package job

import (
	"context"

	"github.com/aliendabz/evalqueue/id"
)

// Mutator edits a stored job in place. Returning an error aborts the
// update and leaves the record untouched.
type Mutator func(j *Job) error

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// UserID filters by owner. Empty means all users.
	UserID string
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the contract for the authoritative job table.
// All methods are synchronous and return copies.
type Store interface {
	// InsertJob adds a new job.
	InsertJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobsByUser returns a user's jobs, most recent position first.
	ListJobsByUser(ctx context.Context, userID string) ([]*Job, error)

	// ListPendingJobs returns jobs in StatePending, lowest position first.
	ListPendingJobs(ctx context.Context) ([]*Job, error)

	// ListJobs returns every job.
	ListJobs(ctx context.Context) ([]*Job, error)

	// UpdateJob applies fn to the stored job atomically and returns a
	// copy of the result.
	UpdateJob(ctx context.Context, jobID id.JobID, fn Mutator) (*Job, error)

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// Clear removes every job.
	Clear(ctx context.Context) error
}
