// Package middleware provides composable wrappers around a single
// evaluation call.
//
// A [Middleware] receives the job being evaluated and the next
// [Handler]. Chain applies them right-to-left, so the first middleware
// is the outermost:
//
//	// logging → recover → timeout → evaluator
//	chain := middleware.Chain(
//	    middleware.Logging(logger),
//	    middleware.Recover(logger),
//	    middleware.Timeout(5*time.Minute),
//	)
//
// # Built-in Middleware
//
//   - [Logging] logs evaluation start, outcome and duration
//   - [Recover] turns evaluator panics into errors wrapping ErrEvaluatorPanic
//   - [Timeout] races the evaluation against a deadline
//   - [Tracing] wraps the evaluation in an OpenTelemetry span
//   - [Metrics] records evaluation duration and outcome counters
//
// Middleware must call next unless deliberately short-circuiting.
package middleware
