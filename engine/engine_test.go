package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aliendabz/evalqueue"
	audithook "github.com/aliendabz/evalqueue/audit_hook"
	"github.com/aliendabz/evalqueue/engine"
	"github.com/aliendabz/evalqueue/evaluator"
	"github.com/aliendabz/evalqueue/event"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() evalqueue.Config {
	cfg := evalqueue.DefaultConfig()
	cfg.MaxConcurrentJobs = 1
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func newEngine(t *testing.T, cfg evalqueue.Config, ev evaluator.Evaluator, opts ...engine.Option) *engine.Engine {
	t.Helper()
	all := append([]engine.Option{engine.WithConfig(cfg), engine.WithLogger(discardLogger())}, opts...)
	eng, err := engine.New(ev, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
	return eng
}

func start(t *testing.T, eng *engine.Engine) {
	t.Helper()
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func add(t *testing.T, eng *engine.Engine, userID, code string, p evalqueue.Priority) *job.Job {
	t.Helper()
	j, err := eng.AddToQueue(context.Background(), "proj_1", userID, job.Submission{Code: code, Language: "go"}, p)
	if err != nil {
		t.Fatalf("AddToQueue: %v", err)
	}
	return j
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func waitState(t *testing.T, eng *engine.Engine, jobID id.JobID, state job.State) *job.Job {
	t.Helper()
	var got *job.Job
	waitFor(t, func() bool {
		j, ok := eng.GetQueueItem(context.Background(), jobID)
		got = j
		return ok && j.State == state
	})
	return got
}

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) Evaluate(_ context.Context, req evaluator.Request) (*job.Result, error) {
	r.mu.Lock()
	r.order = append(r.order, req.Code)
	r.mu.Unlock()
	return &job.Result{Score: 10, MaxScore: 10, Passed: true}, nil
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func failing(msg string) evaluator.Func {
	return func(context.Context, evaluator.Request) (*job.Result, error) {
		return nil, errors.New(msg)
	}
}

// Scenario: low, high, normal submitted in that order run as high,
// normal, low on a single worker.
func TestEngine_PriorityDispatch(t *testing.T) {
	rec := &recorder{}
	eng := newEngine(t, baseConfig(), rec)

	add(t, eng, "u1", "low", evalqueue.PriorityLow)
	add(t, eng, "u1", "high", evalqueue.PriorityHigh)
	add(t, eng, "u1", "normal", evalqueue.PriorityNormal)
	start(t, eng)

	waitFor(t, func() bool { return len(rec.ran()) == 3 })
	got := strings.Join(rec.ran(), ",")
	if got != "high,normal,low" {
		t.Errorf("dispatch order = %s, want high,normal,low", got)
	}
}

// Scenario: a 50ms timeout against a 200ms evaluator fails the attempt
// promptly and schedules a retry.
func TestEngine_TimeoutSchedulesRetry(t *testing.T) {
	cfg := baseConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.RetryDelay = time.Hour
	cfg.MaxRetries = 1

	slow := evaluator.Func(func(context.Context, evaluator.Request) (*job.Result, error) {
		time.Sleep(200 * time.Millisecond)
		return &job.Result{Passed: true}, nil
	})
	eng := newEngine(t, cfg, slow)

	failed := make(chan event.Event, 1)
	eng.Subscribe([]event.Kind{event.KindItemFailed}, func(evt event.Event) error {
		failed <- evt
		return nil
	})
	start(t, eng)

	begin := time.Now()
	j := add(t, eng, "u1", "x", evalqueue.PriorityNormal)

	select {
	case evt := <-failed:
		if elapsed := time.Since(begin); elapsed > 150*time.Millisecond {
			t.Errorf("failure reported after %v, want about 50ms", elapsed)
		}
		if !strings.Contains(evt.Job.Error, "processing timeout") {
			t.Errorf("Error = %q, want processing timeout", evt.Job.Error)
		}
		if evt.Job.State != job.StateFailed {
			t.Errorf("event state = %s, want failed", evt.Job.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no item_failed event")
	}

	waitState(t, eng, j.ID, job.StateRetrying)
}

// Scenario: with maxRetries = 2 and an always-failing evaluator the job
// ends failed with retryCount 2.
func TestEngine_RetriesExhausted(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxRetries = 2
	eng := newEngine(t, cfg, failing("provider unavailable"))
	start(t, eng)

	j := add(t, eng, "u1", "x", evalqueue.PriorityNormal)
	final := waitState(t, eng, j.ID, job.StateFailed)

	if final.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", final.RetryCount)
	}
	if final.Error != "provider unavailable" {
		t.Errorf("Error = %q", final.Error)
	}

	time.Sleep(50 * time.Millisecond)
	again, _ := eng.GetQueueItem(context.Background(), j.ID)
	if again.State != job.StateFailed || again.RetryCount != 2 {
		t.Errorf("job retried past the bound: %s retry %d", again.State, again.RetryCount)
	}
	if eng.RetryQueueItem(context.Background(), j.ID, "u1") {
		t.Error("explicit retry accepted past the bound")
	}
	if eng.CancelQueueItem(context.Background(), j.ID, "u1") {
		t.Error("cancelled a failed job")
	}
	if after, _ := eng.GetQueueItem(context.Background(), j.ID); after.State != job.StateFailed {
		t.Errorf("state = %s after cancel, want failed", after.State)
	}
}

// Scenario: cancelling a pending job succeeds once.
func TestEngine_CancelPending(t *testing.T) {
	eng := newEngine(t, baseConfig(), &recorder{})

	j := add(t, eng, "u1", "x", evalqueue.PriorityNormal)

	if eng.CancelQueueItem(context.Background(), j.ID, "u2") {
		t.Error("non-owner cancelled the job")
	}
	if !eng.CancelQueueItem(context.Background(), j.ID, "u1") {
		t.Fatal("CancelQueueItem returned false for pending job")
	}
	got, _ := eng.GetQueueItem(context.Background(), j.ID)
	if got.State != job.StateCancelled {
		t.Errorf("state = %s, want cancelled", got.State)
	}
	if eng.CancelQueueItem(context.Background(), j.ID, "u1") {
		t.Error("second cancel returned true")
	}
}

// Scenario: five jobs with three finished report total 5, completed 3
// and the remaining two not yet finished.
func TestEngine_QueueStats(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var calls atomic.Int32
	ev := evaluator.Func(func(ctx context.Context, _ evaluator.Request) (*job.Result, error) {
		if calls.Add(1) > 3 {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &job.Result{Passed: true}, nil
	})
	eng := newEngine(t, baseConfig(), ev)

	for range 5 {
		add(t, eng, "u1", "x", evalqueue.PriorityNormal)
	}
	start(t, eng)

	waitFor(t, func() bool { return eng.GetQueueStats(context.Background()).CompletedItems == 3 })
	waitFor(t, func() bool { return eng.GetQueueStats(context.Background()).ProcessingItems == 1 })

	s := eng.GetQueueStats(context.Background())
	if s.TotalItems != 5 {
		t.Errorf("TotalItems = %d, want 5", s.TotalItems)
	}
	if s.CompletedItems != 3 {
		t.Errorf("CompletedItems = %d, want 3", s.CompletedItems)
	}
	if s.PendingItems+s.ProcessingItems != 2 {
		t.Errorf("pending %d + processing %d, want 2", s.PendingItems, s.ProcessingItems)
	}
	if s.FailedItems != 0 || s.CancelledItems != 0 {
		t.Errorf("unexpected failures: %+v", s)
	}
}

func TestEngine_AddToQueueValidation(t *testing.T) {
	eng := newEngine(t, baseConfig(), &recorder{})

	tests := []struct {
		name    string
		userID  string
		code    string
		p       evalqueue.Priority
		wantErr error
	}{
		{"missing user", "", "x", evalqueue.PriorityNormal, evalqueue.ErrMissingUser},
		{"empty code", "u1", "   ", evalqueue.PriorityNormal, evalqueue.ErrEmptySubmission},
		{"bad priority", "u1", "x", evalqueue.Priority("critical"), evalqueue.ErrInvalidPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.AddToQueue(context.Background(), "p", tt.userID, job.Submission{Code: tt.code}, tt.p)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	j, err := eng.AddToQueue(context.Background(), "p", "u1", job.Submission{Code: "x"}, "")
	if err != nil {
		t.Fatalf("AddToQueue: %v", err)
	}
	if j.Priority != evalqueue.PriorityNormal {
		t.Errorf("default priority = %s, want normal", j.Priority)
	}
	if j.MaxRetries != baseConfig().MaxRetries {
		t.Errorf("MaxRetries = %d, want %d", j.MaxRetries, baseConfig().MaxRetries)
	}
}

func TestEngine_RateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.SubmitRate = 0.001
	cfg.SubmitBurst = 2
	eng := newEngine(t, cfg, &recorder{})

	add(t, eng, "u1", "a", evalqueue.PriorityNormal)
	add(t, eng, "u1", "b", evalqueue.PriorityNormal)
	_, err := eng.AddToQueue(context.Background(), "p", "u1", job.Submission{Code: "c"}, evalqueue.PriorityNormal)
	if !errors.Is(err, evalqueue.ErrRateLimited) {
		t.Errorf("third submission = %v, want ErrRateLimited", err)
	}
	add(t, eng, "u2", "a", evalqueue.PriorityNormal)
}

func TestEngine_UserItems(t *testing.T) {
	eng := newEngine(t, baseConfig(), &recorder{})

	first := add(t, eng, "u1", "a", evalqueue.PriorityNormal)
	add(t, eng, "u2", "b", evalqueue.PriorityNormal)
	second := add(t, eng, "u1", "c", evalqueue.PriorityLow)

	items := eng.GetUserQueueItems(context.Background(), "u1")
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].ID.String() != second.ID.String() || items[1].ID.String() != first.ID.String() {
		t.Error("user items not ordered most recent first")
	}
	if got := eng.GetUserQueueItems(context.Background(), "nobody"); len(got) != 0 {
		t.Errorf("unknown user has %d items", len(got))
	}
	if _, ok := eng.GetQueueItem(context.Background(), id.NewJobID()); ok {
		t.Error("unknown job found")
	}
}

func TestEngine_SubscriberFailureIsolated(t *testing.T) {
	eng := newEngine(t, baseConfig(), &recorder{})

	var reached atomic.Int32
	eng.Subscribe(nil, func(event.Event) error { panic("listener bug") })
	eng.Subscribe([]event.Kind{event.KindItemCompleted}, func(event.Event) error {
		reached.Add(1)
		return nil
	})
	start(t, eng)

	j := add(t, eng, "u1", "x", evalqueue.PriorityNormal)
	waitState(t, eng, j.ID, job.StateCompleted)
	waitFor(t, func() bool { return reached.Load() == 1 })
}

func TestEngine_SubscribeUnsubscribe(t *testing.T) {
	eng := newEngine(t, baseConfig(), &recorder{})

	var kinds []event.Kind
	var mu sync.Mutex
	subID := eng.Subscribe(nil, func(evt event.Event) error {
		mu.Lock()
		kinds = append(kinds, evt.Kind)
		mu.Unlock()
		return nil
	})

	add(t, eng, "u1", "x", evalqueue.PriorityNormal)
	if !eng.Unsubscribe(subID) {
		t.Fatal("Unsubscribe returned false")
	}
	add(t, eng, "u1", "y", evalqueue.PriorityNormal)

	mu.Lock()
	defer mu.Unlock()
	want := []event.Kind{event.KindItemAdded, event.KindQueueUpdated}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

func TestEngine_HealthAndStop(t *testing.T) {
	eng := newEngine(t, baseConfig(), &recorder{})

	if eng.GetHealthStatus().IsRunning {
		t.Error("running before Start")
	}
	start(t, eng)
	j := add(t, eng, "u1", "x", evalqueue.PriorityNormal)
	waitState(t, eng, j.ID, job.StateCompleted)

	h := eng.GetHealthStatus()
	if !h.IsRunning || h.ActiveJobs != 0 || h.QueueSize != 0 || h.LastActivity.IsZero() {
		t.Errorf("health = %+v", h)
	}

	var after atomic.Int32
	eng.Subscribe(nil, func(event.Event) error {
		after.Add(1)
		return nil
	})
	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if eng.GetHealthStatus().IsRunning {
		t.Error("running after Stop")
	}
	if _, ok := eng.GetQueueItem(context.Background(), j.ID); ok {
		t.Error("storage not cleared by Stop")
	}
	if eng.Bus().Len() != 0 {
		t.Errorf("subscriptions after Stop = %d", eng.Bus().Len())
	}
	_, err := eng.AddToQueue(context.Background(), "p", "u1", job.Submission{Code: "x"}, evalqueue.PriorityNormal)
	if !errors.Is(err, evalqueue.ErrQueueStopped) {
		t.Errorf("AddToQueue after Stop = %v, want ErrQueueStopped", err)
	}
	if after.Load() != 0 {
		t.Errorf("subscriber saw %d events after Stop", after.Load())
	}
}

func TestEngine_Sweep(t *testing.T) {
	cfg := baseConfig()
	cfg.RetentionWindow = time.Millisecond
	eng := newEngine(t, cfg, &recorder{})
	start(t, eng)

	j := add(t, eng, "u1", "x", evalqueue.PriorityNormal)
	waitState(t, eng, j.ID, job.StateCompleted)
	time.Sleep(5 * time.Millisecond)

	n, err := eng.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, ok := eng.GetQueueItem(context.Background(), j.ID); ok {
		t.Error("expired job still present")
	}
}

func TestEngine_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	eng := newEngine(t, baseConfig(), &recorder{}, engine.WithTracerProvider(tp))
	start(t, eng)

	j := add(t, eng, "u1", "x", evalqueue.PriorityHigh)
	waitState(t, eng, j.ID, job.StateCompleted)

	waitFor(t, func() bool { return len(sr.Ended()) == 1 })
	if name := sr.Ended()[0].Name(); name != "evalqueue.evaluation.execute" {
		t.Errorf("span name = %q", name)
	}
}

func TestEngine_AuditTrail(t *testing.T) {
	var mu sync.Mutex
	var actions []string
	rec := audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		mu.Lock()
		actions = append(actions, evt.Action)
		mu.Unlock()
		return nil
	})
	eng := newEngine(t, baseConfig(), &recorder{}, engine.WithAuditRecorder(rec))

	j := add(t, eng, "u1", "x", evalqueue.PriorityNormal)
	start(t, eng)
	waitState(t, eng, j.ID, job.StateCompleted)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(actions) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		audithook.ActionEvaluationQueued,
		audithook.ActionEvaluationStarted,
		audithook.ActionEvaluationCompleted,
	}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Errorf("audit actions = %v, want %v", actions, want)
	}
}

func TestEngine_ConcurrentStartAttachesHooksOnce(t *testing.T) {
	rec := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error { return nil })
	eng := newEngine(t, baseConfig(), &recorder{}, engine.WithAuditRecorder(rec))

	// metrics recorder + audit hook
	const hooks = 2
	if eng.Bus().Len() != hooks {
		t.Fatalf("subscriptions after New = %d, want %d", eng.Bus().Len(), hooks)
	}
	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eng.Start(context.Background()); err != nil {
				t.Errorf("Start: %v", err)
			}
		}()
	}
	wg.Wait()

	if eng.Bus().Len() != hooks {
		t.Errorf("subscriptions after concurrent Start = %d, want %d", eng.Bus().Len(), hooks)
	}
	if !eng.GetHealthStatus().IsRunning {
		t.Error("not running after Start")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := engine.New(nil); !errors.Is(err, evalqueue.ErrNoEvaluator) {
		t.Errorf("New(nil) = %v, want ErrNoEvaluator", err)
	}

	cfg := evalqueue.DefaultConfig()
	cfg.MaxConcurrentJobs = 0
	if _, err := engine.New(&recorder{}, engine.WithConfig(cfg)); !errors.Is(err, evalqueue.ErrInvalidConfig) {
		t.Errorf("New(bad config) = %v, want ErrInvalidConfig", err)
	}
}
