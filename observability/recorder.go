package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aliendabz/evalqueue/event"
	"github.com/aliendabz/evalqueue/stats"
)

const meterName = "github.com/aliendabz/evalqueue/observability"

// Recorder turns bus events into metrics.
//
// Counters: evalqueue.job.added, evalqueue.job.retried,
// evalqueue.job.started, evalqueue.job.completed, evalqueue.job.failed
// and evalqueue.job.cancelled, each with a priority attribute.
// Histogram: evalqueue.job.wait_time in seconds, recorded when a job
// starts. Gauges: evalqueue.queue.pending and evalqueue.queue.processing,
// read from the latest queue_updated snapshot.
type Recorder struct {
	JobAdded     metric.Int64Counter
	JobRetried   metric.Int64Counter
	JobStarted   metric.Int64Counter
	JobCompleted metric.Int64Counter
	JobFailed    metric.Int64Counter
	JobCancelled metric.Int64Counter
	WaitTime     metric.Float64Histogram

	mu   sync.Mutex
	last stats.QueueStats
}

// NewRecorder creates a Recorder on the global MeterProvider.
func NewRecorder() (*Recorder, error) {
	return NewRecorderWithMeter(otel.Meter(meterName))
}

// NewRecorderWithMeter creates a Recorder on meter.
func NewRecorderWithMeter(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&r.JobAdded, "evalqueue.job.added", "Jobs placed in the ready queue"},
		{&r.JobRetried, "evalqueue.job.retried", "Jobs re-queued after a failure"},
		{&r.JobStarted, "evalqueue.job.started", "Jobs claimed by a worker"},
		{&r.JobCompleted, "evalqueue.job.completed", "Jobs that produced a result"},
		{&r.JobFailed, "evalqueue.job.failed", "Failed evaluation attempts"},
		{&r.JobCancelled, "evalqueue.job.cancelled", "Jobs cancelled by their owner"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{job}"))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	var err error
	r.WaitTime, err = meter.Float64Histogram("evalqueue.job.wait_time",
		metric.WithDescription("Time jobs spent queued before a worker claimed them"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge("evalqueue.queue.pending",
		metric.WithDescription("Jobs waiting to be dispatched, including retry delays"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(r.snapshot().PendingItems))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge("evalqueue.queue.processing",
		metric.WithDescription("Jobs currently holding a worker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(r.snapshot().ProcessingItems))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Handle is an event.Handler.
func (r *Recorder) Handle(evt event.Event) error {
	ctx := context.Background()

	if evt.Kind == event.KindQueueUpdated {
		if evt.Stats != nil {
			r.mu.Lock()
			r.last = *evt.Stats
			r.mu.Unlock()
		}
		return nil
	}
	if evt.Job == nil {
		return nil
	}

	attrs := metric.WithAttributes(attribute.String("priority", string(evt.Job.Priority)))
	switch evt.Kind {
	case event.KindItemAdded:
		r.JobAdded.Add(ctx, 1, attrs)
		if evt.Job.RetryCount > 0 {
			r.JobRetried.Add(ctx, 1, attrs)
		}
	case event.KindItemStarted:
		r.JobStarted.Add(ctx, 1, attrs)
		r.WaitTime.Record(ctx, evt.Job.WaitTime().Seconds(), attrs)
	case event.KindItemCompleted:
		r.JobCompleted.Add(ctx, 1, attrs)
	case event.KindItemFailed:
		r.JobFailed.Add(ctx, 1, attrs)
	case event.KindItemCancelled:
		r.JobCancelled.Add(ctx, 1, attrs)
	}
	return nil
}

func (r *Recorder) snapshot() stats.QueueStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
