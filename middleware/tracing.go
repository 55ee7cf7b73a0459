package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aliendabz/evalqueue/job"
)

const tracerName = "github.com/aliendabz/evalqueue"

// Tracing returns middleware that wraps each evaluation in a span using
// the global TracerProvider, which is a noop unless one is installed.
//
// Span attributes: evalqueue.job.id, evalqueue.user.id,
// evalqueue.project.id, evalqueue.priority, evalqueue.retry_count and
// evalqueue.language.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (*job.Result, error) {
		ctx, span := tracer.Start(ctx, "evalqueue.evaluation.execute",
			trace.WithAttributes(
				attribute.String("evalqueue.job.id", j.ID.String()),
				attribute.String("evalqueue.user.id", j.UserID),
				attribute.String("evalqueue.project.id", j.ProjectID),
				attribute.String("evalqueue.priority", string(j.Priority)),
				attribute.Int("evalqueue.retry_count", j.RetryCount),
				attribute.String("evalqueue.language", j.Submission.Language),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
		if res != nil {
			span.SetAttributes(
				attribute.Float64("evalqueue.result.score", res.Score),
				attribute.Bool("evalqueue.result.passed", res.Passed),
			)
		}
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
}
