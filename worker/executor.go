// Package worker is the dispatcher: a fixed pool of goroutines that pull
// jobs from the prioritized ready queue, run them through the evaluator
// and drive every state transition.
//
// All job mutations happen under the pool's mutex. Events are queued on
// the bus while the mutex is held and delivered after it is released,
// so subscribers observe transitions in the order they happened and may
// call back into the pool.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aliendabz/evalqueue/evaluator"
	"github.com/aliendabz/evalqueue/job"
	"github.com/aliendabz/evalqueue/middleware"
)

// Executor runs a single evaluation through the middleware chain.
type Executor struct {
	evaluator evaluator.Evaluator
	mw        middleware.Middleware
	logger    *slog.Logger
}

// NewExecutor creates an Executor. The chain is mws followed by panic
// recovery and the processing timeout, so the evaluator call is always
// bounded by timeout and a panic never escapes.
func NewExecutor(
	ev evaluator.Evaluator,
	timeout time.Duration,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	chain := make([]middleware.Middleware, 0, len(mws)+2)
	chain = append(chain, mws...)
	chain = append(chain, middleware.Recover(logger), middleware.Timeout(timeout))
	return &Executor{
		evaluator: ev,
		mw:        middleware.Chain(chain...),
		logger:    logger,
	}
}

// Execute evaluates j's submission and reports how long the call took.
// A nil result with a nil error is reported as evaluator.ErrEmptyResult.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (*job.Result, time.Duration, error) {
	req := evaluator.RequestFor(j)
	terminal := func(ctx context.Context) (*job.Result, error) {
		return e.evaluator.Evaluate(ctx, req)
	}

	start := time.Now()
	res, err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err == nil && res == nil {
		err = evaluator.ErrEmptyResult
	}
	return res, elapsed, err
}
