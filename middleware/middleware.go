package middleware

import (
	"context"

	"github.com/aliendabz/evalqueue/job"
)

// Handler runs the evaluation and returns its result.
type Handler func(ctx context.Context) (*job.Result, error)

// Middleware wraps a Handler. j is a snapshot of the job being
// evaluated; changes to it are not persisted.
type Middleware func(ctx context.Context, j *job.Job, next Handler) (*job.Result, error)

// Chain composes middleware into one. The first middleware in the list
// is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (*job.Result, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			inner := h
			h = func(ctx context.Context) (*job.Result, error) {
				return mw(ctx, j, inner)
			}
		}
		return h(ctx)
	}
}
