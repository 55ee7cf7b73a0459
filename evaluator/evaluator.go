// Package evaluator defines the contract between the queue and the
// component that scores a submission.
//
// The queue treats every error the same way: the job fails and may be
// retried. It never inspects what kind of error an evaluator returned.
package evaluator

import (
	"context"

	"github.com/aliendabz/evalqueue/job"
)

// Request is what a job hands to the evaluator.
type Request struct {
	Code     string         `json:"code"`
	Language string         `json:"language,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// RequestFor builds the request for j's submission.
func RequestFor(j *job.Job) Request {
	return Request{
		Code:     j.Submission.Code,
		Language: j.Submission.Language,
		Context:  j.Submission.Context,
	}
}

// Evaluator scores a submission. Implementations should return promptly
// once ctx is done; the queue discards any result produced after a
// timeout or cancellation.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (*job.Result, error)
}

// Func adapts a function to an Evaluator.
type Func func(ctx context.Context, req Request) (*job.Result, error)

// Evaluate implements Evaluator.
func (f Func) Evaluate(ctx context.Context, req Request) (*job.Result, error) {
	return f(ctx, req)
}
