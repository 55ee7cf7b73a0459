package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/job"
)

// Recover returns middleware that converts evaluator panics into errors
// wrapping evalqueue.ErrEvaluatorPanic.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (res *job.Result, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("evaluator panicked",
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				res = nil
				retErr = fmt.Errorf("%w: %v", evalqueue.ErrEvaluatorPanic, r)
			}
		}()
		return next(ctx)
	}
}
