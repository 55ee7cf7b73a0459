package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aliendabz/evalqueue"
	audithook "github.com/aliendabz/evalqueue/audit_hook"
	"github.com/aliendabz/evalqueue/backoff"
	"github.com/aliendabz/evalqueue/evaluator"
	"github.com/aliendabz/evalqueue/event"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
	mw "github.com/aliendabz/evalqueue/middleware"
	"github.com/aliendabz/evalqueue/observability"
	"github.com/aliendabz/evalqueue/queue"
	"github.com/aliendabz/evalqueue/stats"
	"github.com/aliendabz/evalqueue/store/memory"
	"github.com/aliendabz/evalqueue/sweeper"
	"github.com/aliendabz/evalqueue/worker"
)

const instrumentationName = "github.com/aliendabz/evalqueue"

// HealthStatus reports whether the queue is running and how busy it is.
type HealthStatus struct {
	IsRunning    bool      `json:"is_running"`
	ActiveJobs   int       `json:"active_jobs"`
	QueueSize    int       `json:"queue_size"`
	LastActivity time.Time `json:"last_activity"`
}

// Engine is the evaluation queue.
type Engine struct {
	cfg      evalqueue.Config
	logger   *slog.Logger
	store    job.Store
	bus      *event.Bus
	pool     *worker.Pool
	sweeper  *sweeper.Sweeper
	limiter  *queue.Limiter
	recorder *observability.Recorder
	audit    *audithook.Hook

	// lifecycle serializes Start and Stop. attached is guarded by it.
	lifecycle sync.Mutex
	attached  bool

	bo       backoff.Strategy
	mws      []mw.Middleware
	reporter event.ErrorReporter

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg evalqueue.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithStore replaces the in-memory job store.
func WithStore(s job.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithBackoff sets the delay between automatic retries. The default is
// a flat Config.RetryDelay.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithMiddleware adds middleware around every evaluator call. Added
// middleware runs inside the built-in tracing, metrics and logging.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithErrorReporter sets the collaborator that records failing
// subscribers. The default logs them.
func WithErrorReporter(r event.ErrorReporter) Option {
	return func(eng *Engine) { eng.reporter = r }
}

// WithAuditRecorder records every item transition through r while the
// engine runs.
func WithAuditRecorder(r audithook.Recorder, opts ...audithook.Option) Option {
	return func(eng *Engine) { eng.audit = audithook.New(r, opts...) }
}

// WithTracerProvider sets the OTel TracerProvider. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets the OTel MeterProvider. The global provider is
// used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates a stopped engine that scores submissions with ev.
func New(ev evaluator.Evaluator, opts ...Option) (*Engine, error) {
	if ev == nil {
		return nil, evalqueue.ErrNoEvaluator
	}

	eng := &Engine{
		cfg:    evalqueue.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if err := eng.cfg.Validate(); err != nil {
		return nil, err
	}
	if eng.store == nil {
		eng.store = memory.New()
	}
	if eng.bo == nil {
		eng.bo = backoff.Default(eng.cfg.RetryDelay)
	}

	busOpts := []event.BusOption{}
	if eng.reporter != nil {
		busOpts = append(busOpts, event.WithErrorReporter(eng.reporter))
	}
	eng.bus = event.NewBus(eng.logger, busOpts...)

	var tracingMw, metricsMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var err error
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		eng.recorder, err = observability.NewRecorderWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		metricsMw = mw.Metrics()
		eng.recorder, err = observability.NewRecorder()
	}
	if err != nil {
		return nil, fmt.Errorf("evalqueue: create metrics recorder: %w", err)
	}

	// tracing → metrics → logging → user middleware → recover → timeout
	allMws := make([]mw.Middleware, 0, len(eng.mws)+3)
	allMws = append(allMws, tracingMw, metricsMw, mw.Logging(eng.logger))
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(ev, eng.cfg.Timeout, eng.logger, allMws...)
	eng.pool = worker.NewPool(eng.cfg, eng.store, executor, eng.bus, eng.logger,
		worker.WithBackoff(eng.bo),
	)
	eng.sweeper = sweeper.New(eng.pool, eng.cfg.SweepInterval, eng.cfg.RetentionWindow, eng.logger)
	eng.limiter = queue.NewLimiter(eng.cfg.SubmitRate, eng.cfg.SubmitBurst)
	eng.attachHooks()

	return eng, nil
}

// attachHooks subscribes the built-in metrics recorder and the audit
// hook. Stop drops them with every other subscription.
func (eng *Engine) attachHooks() {
	eng.bus.Subscribe(nil, eng.recorder.Handle)
	if eng.audit != nil {
		eng.bus.Subscribe(nil, eng.audit.Handle)
	}
	eng.attached = true
}

// Start launches the workers and the retention sweeper.
func (eng *Engine) Start(ctx context.Context) error {
	eng.lifecycle.Lock()
	defer eng.lifecycle.Unlock()

	if eng.pool.Running() {
		return nil
	}
	if !eng.attached {
		eng.attachHooks()
	}

	if err := eng.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := eng.sweeper.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	eng.logger.Info("evaluation queue started",
		slog.Int("max_concurrent_jobs", eng.cfg.MaxConcurrentJobs),
		slog.Int("max_retries", eng.cfg.MaxRetries),
		slog.Duration("timeout", eng.cfg.Timeout),
	)
	return nil
}

// Stop halts admission, revokes scheduled retries, cancels in-flight
// evaluations, drops every subscription and clears storage.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.lifecycle.Lock()
	defer eng.lifecycle.Unlock()

	var errs []error
	if err := eng.sweeper.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop sweeper: %w", err))
	}
	if err := eng.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
	}
	eng.bus.Clear()
	eng.attached = false
	if err := eng.store.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear store: %w", err))
	}
	eng.limiter.Reset()

	eng.logger.Info("evaluation queue stopped")
	return errors.Join(errs...)
}

// AddToQueue admits a submission for userID at priority p. An empty
// priority means normal.
func (eng *Engine) AddToQueue(
	ctx context.Context,
	projectID, userID string,
	sub job.Submission,
	p evalqueue.Priority,
) (*job.Job, error) {
	if userID == "" {
		return nil, evalqueue.ErrMissingUser
	}
	if strings.TrimSpace(sub.Code) == "" {
		return nil, evalqueue.ErrEmptySubmission
	}
	if p == "" {
		p = evalqueue.PriorityNormal
	}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %q", evalqueue.ErrInvalidPriority, p)
	}
	if !eng.limiter.Allow(userID) {
		return nil, evalqueue.ErrRateLimited
	}

	return eng.pool.Submit(ctx, &job.Job{
		ID:         id.NewJobID(),
		UserID:     userID,
		ProjectID:  projectID,
		Submission: sub,
		Priority:   p,
		MaxRetries: eng.cfg.MaxRetries,
	})
}

// GetQueueItem returns a copy of the job, if it is known.
func (eng *Engine) GetQueueItem(ctx context.Context, jobID id.JobID) (*job.Job, bool) {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, false
	}
	return j, true
}

// GetUserQueueItems returns userID's jobs, most recent first.
func (eng *Engine) GetUserQueueItems(ctx context.Context, userID string) []*job.Job {
	jobs, err := eng.store.ListJobsByUser(ctx, userID)
	if err != nil {
		eng.logger.Error("list user jobs failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return jobs
}

// GetQueueStats computes current queue statistics.
func (eng *Engine) GetQueueStats(ctx context.Context) stats.QueueStats {
	s, err := eng.pool.Stats(ctx)
	if err != nil {
		eng.logger.Error("compute stats failed", slog.String("error", err.Error()))
	}
	return s
}

// CancelQueueItem cancels a job userID owns that has not finished.
func (eng *Engine) CancelQueueItem(ctx context.Context, jobID id.JobID, userID string) bool {
	return eng.pool.Cancel(ctx, jobID, userID)
}

// RetryQueueItem re-queues a failed job userID owns whose retry budget
// is not spent.
func (eng *Engine) RetryQueueItem(ctx context.Context, jobID id.JobID, userID string) bool {
	return eng.pool.Retry(ctx, jobID, userID)
}

// Subscribe registers h for kinds; no kinds means every kind.
func (eng *Engine) Subscribe(kinds []event.Kind, h event.Handler) id.SubscriptionID {
	return eng.bus.Subscribe(kinds, h)
}

// Unsubscribe removes a subscription.
func (eng *Engine) Unsubscribe(subID id.SubscriptionID) bool {
	return eng.bus.Unsubscribe(subID)
}

// GetHealthStatus reports whether the queue is running and how busy it
// is.
func (eng *Engine) GetHealthStatus() HealthStatus {
	h := eng.pool.Health()
	return HealthStatus{
		IsRunning:    h.Running,
		ActiveJobs:   h.ActiveJobs,
		QueueSize:    h.QueueSize,
		LastActivity: h.LastActivity,
	}
}

// Sweep runs a retention sweep immediately and returns how many jobs it
// removed.
func (eng *Engine) Sweep(ctx context.Context) (int, error) {
	return eng.sweeper.RunOnce(ctx)
}

// Config returns the engine's configuration.
func (eng *Engine) Config() evalqueue.Config { return eng.cfg }

// Bus returns the event bus.
func (eng *Engine) Bus() *event.Bus { return eng.bus }
