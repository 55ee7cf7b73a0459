// Package evalqueue provides an in-process evaluation queue for code
// submissions. It accepts jobs, orders them by priority, runs them
// against an external Evaluator under a concurrency bound, and manages
// retries, timeouts, cancellation and lifecycle notification.
//
// evalqueue is a library, not a service. Build an engine, hand it an
// Evaluator, and call its operations from your own transport.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    evaluator.Func(func(ctx context.Context, req evaluator.Request) (*job.Result, error) {
//	        return grade(ctx, req.Code, req.Language)
//	    }),
//	    engine.WithConfig(evalqueue.DefaultConfig()),
//	)
//	if err != nil { ... }
//	_ = eng.Start(ctx)
//	j, err := eng.AddToQueue(ctx, "proj-1", "user-1", job.Submission{Code: src, Language: "go"}, evalqueue.PriorityNormal)
//
// # Architecture
//
// The memory store owns job records. The worker pool is the only writer:
// it pops the next job from a prioritized ready queue, drives the state
// machine, and posts lifecycle events to the event bus. Stats are
// recomputed from the store after every mutation and published as
// queue_updated. A sweeper evicts terminal jobs past the retention window.
//
// Identifiers are TypeIDs: type-prefixed, K-sortable, UUIDv7-based.
package evalqueue
