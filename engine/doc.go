// Package engine wires the evaluation queue together and exposes its
// public operations.
//
// The engine owns the job store, event bus, worker pool, retention
// sweeper, submission limiter and metrics recorder. It sits above every
// subsystem package so none of them import each other in a cycle.
//
// # Building an Engine
//
//	eng, err := engine.New(evaluator.NewHTTP("http://grader:8080/evaluate"),
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithMiddleware(myMiddleware),
//	)
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(ctx)
//
// # Submitting Work
//
//	j, err := eng.AddToQueue(ctx, "proj-1", "user-1", job.Submission{
//	    Code:     src,
//	    Language: "go",
//	}, evalqueue.PriorityHigh)
//
// # Watching Progress
//
//	eng.Subscribe([]event.Kind{event.KindItemCompleted}, func(evt event.Event) error {
//	    fmt.Println(evt.Job.ID, evt.Job.Result.Score)
//	    return nil
//	})
//
// Subscribers run synchronously in subscription order. A failing
// subscriber is reported to the configured ErrorReporter and does not
// affect the queue or the other subscribers.
package engine
