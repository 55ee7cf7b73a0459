package evalqueue

import "errors"

var (
	// Lookup errors.
	ErrJobNotFound          = errors.New("evalqueue: job not found")
	ErrJobAlreadyExists     = errors.New("evalqueue: job already exists")
	ErrSubscriptionNotFound = errors.New("evalqueue: subscription not found")

	// Submission errors.
	ErrEmptySubmission = errors.New("evalqueue: submission has no code")
	ErrInvalidPriority = errors.New("evalqueue: invalid priority")
	ErrMissingUser     = errors.New("evalqueue: user id is required")
	ErrRateLimited     = errors.New("evalqueue: submission rate exceeded")

	// Processing errors.
	ErrProcessingTimeout = errors.New("evalqueue: processing timeout")
	ErrEvaluatorPanic    = errors.New("evalqueue: evaluator panicked")
	ErrSubscriberPanic   = errors.New("evalqueue: subscriber panicked")

	// Lifecycle errors.
	ErrQueueStopped  = errors.New("evalqueue: queue stopped")
	ErrNoEvaluator   = errors.New("evalqueue: no evaluator configured")
	ErrInvalidConfig = errors.New("evalqueue: invalid config")
	ErrInvalidState  = errors.New("evalqueue: invalid state transition")
)
