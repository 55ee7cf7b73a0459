package middleware

import (
	"context"
	"time"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/job"
)

type outcome struct {
	res *job.Result
	err error
}

// Timeout returns middleware that races the evaluation against d.
//
// When d elapses first the evaluation's context is cancelled and the
// middleware returns evalqueue.ErrProcessingTimeout without waiting for
// the call to return; whatever it eventually produces is dropped. A
// panic in the raced call is re-raised on the caller's goroutine so an
// outer Recover sees it. A non-positive d disables the race.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, next Handler) (*job.Result, error) {
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan outcome, 1)
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					panicked <- r
				}
			}()
			res, err := next(ctx)
			done <- outcome{res: res, err: err}
		}()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case out := <-done:
			return out.res, out.err
		case r := <-panicked:
			panic(r)
		case <-timer.C:
			return nil, evalqueue.ErrProcessingTimeout
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
}
