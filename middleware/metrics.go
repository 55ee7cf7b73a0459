package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/job"
)

const meterName = "github.com/aliendabz/evalqueue"

// Metrics returns middleware that records evaluation metrics on the
// global MeterProvider.
//
// Instruments:
//   - evalqueue.evaluation.duration (Float64Histogram, seconds)
//   - evalqueue.evaluation.executions (Int64Counter)
//
// Both carry priority and status attributes. Status is "ok", "error" or
// "timeout".
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API returns noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"evalqueue.evaluation.duration",
		metric.WithDescription("Duration of evaluator calls in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"evalqueue.evaluation.executions",
		metric.WithDescription("Total number of evaluator calls"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) (*job.Result, error) {
		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		switch {
		case errors.Is(err, evalqueue.ErrProcessingTimeout):
			status = "timeout"
		case err != nil:
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("priority", string(j.Priority)),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return res, err
	}
}
