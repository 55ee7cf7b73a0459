package job

import (
	"maps"
	"time"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting in the ready queue.
	StatePending State = "pending"
	// StateProcessing means a worker has claimed the job.
	StateProcessing State = "processing"
	// StateEvaluating means the evaluator call is in flight.
	StateEvaluating State = "evaluating"
	// StateCompleted means the evaluator returned a result.
	StateCompleted State = "completed"
	// StateFailed means the latest attempt failed.
	StateFailed State = "failed"
	// StateRetrying means a failed job is waiting for its retry delay.
	StateRetrying State = "retrying"
	// StateCancelled means the owner cancelled the job.
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no automatic transition leaves s.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// IsActive reports whether s holds a concurrency slot.
func (s State) IsActive() bool {
	return s == StateProcessing || s == StateEvaluating
}

// Submission is the code handed to the evaluator.
type Submission struct {
	Code     string         `json:"code"`
	Language string         `json:"language"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Context carries caller-supplied evaluation inputs such as
	// requirements or rubric weights. The queue does not interpret it.
	Context map[string]any `json:"context,omitempty"`
}

// Result is the evaluator's verdict for one attempt.
type Result struct {
	Score    float64            `json:"score"`
	MaxScore float64            `json:"max_score,omitempty"`
	Passed   bool               `json:"passed"`
	Feedback string             `json:"feedback,omitempty"`
	Criteria map[string]float64 `json:"criteria,omitempty"`
	Details  map[string]any     `json:"details,omitempty"`
}

// Clone returns a deep copy of r. Nested values inside Details are
// shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Criteria = maps.Clone(r.Criteria)
	cp.Details = maps.Clone(r.Details)
	return &cp
}

// Job is the scheduling record of a single code submission.
type Job struct {
	ID         id.JobID           `json:"id"`
	UserID     string             `json:"user_id"`
	ProjectID  string             `json:"project_id"`
	Submission Submission         `json:"submission"`
	State      State              `json:"state"`
	Priority   evalqueue.Priority `json:"priority"`
	Position   uint64             `json:"position"`
	RetryCount int                `json:"retry_count"`
	MaxRetries int                `json:"max_retries"`
	Error      string             `json:"error,omitempty"`
	Result     *Result            `json:"result,omitempty"`

	EstimatedWaitTime time.Duration `json:"estimated_wait_time"`
	ProcessingTime    time.Duration `json:"processing_time,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of j, safe to hand to code outside the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Submission.Metadata = maps.Clone(j.Submission.Metadata)
	cp.Submission.Context = maps.Clone(j.Submission.Context)
	cp.Result = j.Result.Clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// CanRetry reports whether the retry budget allows another attempt.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// WaitTime returns how long the current attempt waited before a worker
// claimed it. It is zero until the job has started.
func (j *Job) WaitTime() time.Duration {
	if j.StartedAt == nil || j.QueuedAt.IsZero() {
		return 0
	}
	if d := j.StartedAt.Sub(j.QueuedAt); d > 0 {
		return d
	}
	return 0
}

// ExpiredBy reports whether j finished before cutoff. Only terminal jobs
// expire; pending and retrying jobs are kept however old they are.
func (j *Job) ExpiredBy(cutoff time.Time) bool {
	return j.State.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff)
}
