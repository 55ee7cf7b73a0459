package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/backoff"
	"github.com/aliendabz/evalqueue/event"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
	"github.com/aliendabz/evalqueue/queue"
	"github.com/aliendabz/evalqueue/schedule"
	"github.com/aliendabz/evalqueue/stats"
)

// Health is a point-in-time view of the pool.
type Health struct {
	Running      bool
	ActiveJobs   int
	QueueSize    int
	LastActivity time.Time
}

// claim is a job a worker has taken off the ready queue.
type claim struct {
	job *job.Job
	ctx context.Context
}

// Pool runs MaxConcurrentJobs workers over a single ready queue.
//
// Cancelling a job that is being evaluated cancels the evaluation's
// context and marks the job cancelled immediately. Whatever the
// evaluator returns afterwards is discarded.
//
// Dispatch is strict priority with FIFO inside a priority. A steady
// stream of higher-priority work starves lower priorities.
type Pool struct {
	cfg      evalqueue.Config
	store    job.Store
	executor *Executor
	bus      *event.Bus
	backoff  backoff.Strategy
	workerID id.WorkerID
	logger   *slog.Logger

	mu           sync.Mutex
	ready        *queue.Ready
	sched        *schedule.Scheduler
	active       map[string]context.CancelFunc
	seq          uint64
	running      bool
	closed       bool
	stats        stats.QueueStats
	lastActivity time.Time

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithBackoff sets the delay strategy between automatic retries.
func WithBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.backoff = s }
}

// NewPool creates a pool that admits jobs but does not dispatch them
// until Start. Events are posted to bus.
func NewPool(
	cfg evalqueue.Config,
	store job.Store,
	executor *Executor,
	bus *event.Bus,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		cfg:      cfg,
		store:    store,
		executor: executor,
		bus:      bus,
		backoff:  backoff.Default(cfg.RetryDelay),
		workerID: id.NewWorkerID(),
		logger:   logger,
		ready:    queue.NewReady(cfg.PriorityWeights),
		sched:    schedule.New(),
		active:   make(map[string]context.CancelFunc),
		wake:     make(chan struct{}, cfg.MaxConcurrentJobs),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the workers. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.closed = false
	p.stopCh = make(chan struct{})
	p.lastActivity = time.Now().UTC()

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.cfg.MaxConcurrentJobs),
	)

	for n := range p.cfg.MaxConcurrentJobs {
		p.wg.Add(1)
		go p.workLoop(n, p.stopCh)
	}
	return nil
}

// Stop halts admission, revokes scheduled retries, cancels in-flight
// evaluations and waits for the workers to exit or ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	wasRunning := p.running
	p.running = false
	if wasRunning {
		close(p.stopCh)
	}
	p.sched.Stop()
	p.sched = schedule.New()
	for key, cancel := range p.active {
		cancel()
		delete(p.active, key)
	}
	p.ready.Clear()
	p.stats = stats.QueueStats{}
	p.mu.Unlock()

	if !wasRunning {
		return nil
	}
	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}

// Running reports whether the workers are dispatching.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Submit admits a new job unless the pool has been stopped. Jobs
// submitted before Start wait in the ready queue. The pool assigns the
// position, queue time and wait estimate; the caller fills identity,
// submission, priority and retry budget.
func (p *Pool) Submit(ctx context.Context, j *job.Job) (*job.Job, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, evalqueue.ErrQueueStopped
	}

	now := time.Now().UTC()
	p.seq++
	j.State = job.StatePending
	j.Position = p.seq
	j.QueuedAt = now
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.EstimatedWaitTime = p.estimateLocked(j.Priority, j.Position)

	if err := p.store.InsertJob(ctx, j); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.ready.Push(j.ID, j.Priority, j.Position)
	p.bus.Post(event.ForJob(event.KindItemAdded, j))
	p.refreshStatsLocked()
	p.lastActivity = now
	p.mu.Unlock()

	p.bus.Flush()
	p.notify()

	p.logger.Debug("job queued",
		slog.String("job_id", j.ID.String()),
		slog.String("user_id", j.UserID),
		slog.String("priority", string(j.Priority)),
		slog.Uint64("position", j.Position),
	)
	return j.Clone(), nil
}

// Cancel cancels a job owned by userID that has not finished. It
// reports whether the job was cancelled.
func (p *Pool) Cancel(ctx context.Context, jobID id.JobID, userID string) bool {
	p.mu.Lock()
	ok := p.cancelLocked(ctx, jobID, userID)
	p.mu.Unlock()
	p.bus.Flush()
	return ok
}

func (p *Pool) cancelLocked(ctx context.Context, jobID id.JobID, userID string) bool {
	now := time.Now().UTC()
	j, err := p.store.UpdateJob(ctx, jobID, func(j *job.Job) error {
		if j.UserID != userID {
			return evalqueue.ErrJobNotFound
		}
		if j.State.IsTerminal() {
			return evalqueue.ErrInvalidState
		}
		j.State = job.StateCancelled
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return false
	}

	key := jobID.String()
	p.ready.Remove(jobID)
	p.sched.Cancel(key)
	p.releaseLocked(key)

	p.bus.Post(event.ForJob(event.KindItemCancelled, j))
	p.refreshStatsLocked()
	p.lastActivity = now

	p.logger.Info("job cancelled",
		slog.String("job_id", key),
		slog.String("user_id", userID),
	)
	return true
}

// Retry re-queues a failed job owned by userID. A job waiting out its
// automatic retry delay is re-queued immediately. It reports whether the
// job was re-queued.
func (p *Pool) Retry(ctx context.Context, jobID id.JobID, userID string) bool {
	p.mu.Lock()
	ok := p.retryLocked(ctx, jobID, userID)
	p.mu.Unlock()
	p.bus.Flush()
	if ok {
		p.notify()
	}
	return ok
}

func (p *Pool) retryLocked(ctx context.Context, jobID id.JobID, userID string) bool {
	if p.closed {
		return false
	}
	j, err := p.store.GetJob(ctx, jobID)
	if err != nil || j.UserID != userID {
		return false
	}
	if j.State != job.StateFailed && j.State != job.StateRetrying {
		return false
	}
	if !j.CanRetry() {
		return false
	}

	p.sched.Cancel(jobID.String())
	return p.requeueLocked(ctx, jobID, j.State) == nil
}

// retryDue runs when a scheduled retry delay elapses.
func (p *Pool) retryDue(jobID id.JobID) {
	p.mu.Lock()
	err := evalqueue.ErrQueueStopped
	if !p.closed {
		err = p.requeueLocked(context.Background(), jobID, job.StateRetrying)
	}
	p.mu.Unlock()
	p.bus.Flush()

	if err == nil {
		p.notify()
	}
}

// requeueLocked moves a job in state from back to pending at the tail of
// its priority.
func (p *Pool) requeueLocked(ctx context.Context, jobID id.JobID, from job.State) error {
	now := time.Now().UTC()
	j, err := p.store.UpdateJob(ctx, jobID, func(j *job.Job) error {
		if j.State != from || !j.CanRetry() {
			return evalqueue.ErrInvalidState
		}
		p.seq++
		j.RetryCount++
		j.State = job.StatePending
		j.Position = p.seq
		j.Error = ""
		j.Result = nil
		j.QueuedAt = now
		j.StartedAt = nil
		j.CompletedAt = nil
		j.ProcessingTime = 0
		j.EstimatedWaitTime = p.estimateLocked(j.Priority, j.Position)
		return nil
	})
	if err != nil {
		return err
	}

	p.ready.Push(j.ID, j.Priority, j.Position)
	p.bus.Post(event.ForJob(event.KindItemAdded, j))
	p.refreshStatsLocked()
	p.lastActivity = now

	p.logger.Info("job re-queued",
		slog.String("job_id", j.ID.String()),
		slog.Int("retry_count", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
	)
	return nil
}

// SweepExpired deletes terminal jobs that finished before cutoff and
// returns how many it removed.
func (p *Pool) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	n, err := p.sweepLocked(ctx, cutoff)
	p.mu.Unlock()
	p.bus.Flush()
	return n, err
}

func (p *Pool) sweepLocked(ctx context.Context, cutoff time.Time) (int, error) {
	jobs, err := p.store.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, j := range jobs {
		if !j.ExpiredBy(cutoff) {
			continue
		}
		if err := p.store.DeleteJob(ctx, j.ID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		p.refreshStatsLocked()
	}
	return removed, nil
}

// Stats computes a fresh snapshot.
func (p *Pool) Stats(ctx context.Context) (stats.QueueStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	jobs, err := p.store.ListJobs(ctx)
	if err != nil {
		return stats.QueueStats{}, err
	}
	return stats.Compute(jobs, p.cfg.MaxConcurrentJobs, p.cfg.ProcessingEstimate, time.Now().UTC()), nil
}

// Health returns the pool's status.
func (p *Pool) Health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Health{
		Running:      p.running,
		ActiveJobs:   len(p.active),
		QueueSize:    p.stats.PendingItems,
		LastActivity: p.lastActivity,
	}
}

// ScheduledRetries returns how many retry delays are pending.
func (p *Pool) ScheduledRetries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sched.Pending()
}

func (p *Pool) workLoop(n int, stopCh <-chan struct{}) {
	defer p.wg.Done()

	for {
		if c, ok := p.claim(); ok {
			p.process(c)
			continue
		}
		select {
		case <-p.wake:
		case <-stopCh:
			p.logger.Debug("worker exiting", slog.Int("worker", n))
			return
		}
	}
}

// claim pops the next pending job and marks it processing.
func (p *Pool) claim() (claim, bool) {
	p.mu.Lock()
	c, ok := p.claimLocked()
	p.mu.Unlock()
	p.bus.Flush()
	return c, ok
}

func (p *Pool) claimLocked() (claim, bool) {
	if !p.running {
		return claim{}, false
	}

	for {
		e, ok := p.ready.Pop()
		if !ok {
			return claim{}, false
		}

		now := time.Now().UTC()
		j, err := p.store.UpdateJob(context.Background(), e.JobID, func(j *job.Job) error {
			if j.State != job.StatePending {
				return evalqueue.ErrInvalidState
			}
			j.State = job.StateProcessing
			j.StartedAt = &now
			return nil
		})
		if err != nil {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		p.active[j.ID.String()] = cancel

		p.bus.Post(event.ForJob(event.KindItemStarted, j))
		p.refreshStatsLocked()
		p.lastActivity = now
		return claim{job: j, ctx: ctx}, true
	}
}

func (p *Pool) process(c claim) {
	j, ok := p.markEvaluating(c.job.ID)
	if !ok {
		return
	}

	res, elapsed, err := p.executor.Execute(c.ctx, j)
	p.finish(j.ID, res, elapsed, err)
}

func (p *Pool) markEvaluating(jobID id.JobID) (*job.Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, err := p.store.UpdateJob(context.Background(), jobID, func(j *job.Job) error {
		if j.State != job.StateProcessing {
			return evalqueue.ErrInvalidState
		}
		j.State = job.StateEvaluating
		return nil
	})
	if err != nil {
		p.releaseLocked(jobID.String())
		return nil, false
	}
	return j, true
}

func (p *Pool) finish(jobID id.JobID, res *job.Result, elapsed time.Duration, evalErr error) {
	p.mu.Lock()
	p.finishLocked(jobID, res, elapsed, evalErr)
	p.mu.Unlock()
	p.bus.Flush()
}

func (p *Pool) finishLocked(jobID id.JobID, res *job.Result, elapsed time.Duration, evalErr error) {
	key := jobID.String()
	p.releaseLocked(key)
	if !p.running {
		return
	}

	now := time.Now().UTC()
	var failed *job.Job
	retry := false
	j, err := p.store.UpdateJob(context.Background(), jobID, func(j *job.Job) error {
		if j.State != job.StateEvaluating {
			return evalqueue.ErrInvalidState
		}
		j.CompletedAt = &now
		j.ProcessingTime = elapsed
		if evalErr == nil {
			j.State = job.StateCompleted
			j.Result = res.Clone()
			j.Error = ""
			return nil
		}

		j.State = job.StateFailed
		j.Result = nil
		j.Error = evalErr.Error()
		failed = j.Clone()
		if p.cfg.AutoRetry && j.CanRetry() {
			j.State = job.StateRetrying
			retry = true
		}
		return nil
	})
	if err != nil {
		p.logger.Debug("discarding evaluation result",
			slog.String("job_id", key),
			slog.String("reason", err.Error()),
		)
		return
	}

	if evalErr == nil {
		p.bus.Post(event.ForJob(event.KindItemCompleted, j))
		p.logger.Info("job completed",
			slog.String("job_id", key),
			slog.Duration("processing_time", elapsed),
		)
	} else {
		p.bus.Post(event.ForJob(event.KindItemFailed, failed))
		p.logger.Warn("job failed",
			slog.String("job_id", key),
			slog.Int("retry_count", j.RetryCount),
			slog.Int("max_retries", j.MaxRetries),
			slog.String("error", evalErr.Error()),
		)
		if retry {
			p.scheduleRetryLocked(j)
		}
	}

	p.refreshStatsLocked()
	p.lastActivity = now
}

func (p *Pool) scheduleRetryLocked(j *job.Job) {
	jobID := j.ID
	delay := p.backoff.Delay(j.RetryCount + 1)
	if !p.sched.After(jobID.String(), delay, func() { p.retryDue(jobID) }) {
		return
	}
	p.logger.Info("job scheduled for retry",
		slog.String("job_id", jobID.String()),
		slog.Int("attempt", j.RetryCount+1),
		slog.Duration("delay", delay),
	)
}

// releaseLocked frees an active slot and cancels its context.
func (p *Pool) releaseLocked(key string) {
	if cancel, ok := p.active[key]; ok {
		cancel()
		delete(p.active, key)
	}
}

func (p *Pool) estimateLocked(pr evalqueue.Priority, position uint64) time.Duration {
	ahead := len(p.active) + p.ready.Ahead(pr, position)
	avg := p.stats.ProcessingEstimate(p.cfg.ProcessingEstimate)
	return stats.EstimateWait(ahead, p.cfg.MaxConcurrentJobs, avg)
}

func (p *Pool) refreshStatsLocked() {
	jobs, err := p.store.ListJobs(context.Background())
	if err != nil {
		p.logger.Error("stats refresh failed", slog.String("error", err.Error()))
		return
	}
	p.stats = stats.Compute(jobs, p.cfg.MaxConcurrentJobs, p.cfg.ProcessingEstimate, time.Now().UTC())
	p.bus.Post(event.ForStats(p.stats))
}

func (p *Pool) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
