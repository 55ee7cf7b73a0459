package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
	"github.com/aliendabz/evalqueue/middleware"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:         id.NewJobID(),
		UserID:     "user_1",
		ProjectID:  "proj_1",
		Priority:   evalqueue.PriorityHigh,
		RetryCount: 2,
		Submission: job.Submission{Code: "print(1)", Language: "python"},
	}
}

func okHandler(_ context.Context) (*job.Result, error) {
	return &job.Result{Score: 90, MaxScore: 100, Passed: true}, nil
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	wrap := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.Job, next middleware.Handler) (*job.Result, error) {
			order = append(order, name+"-before")
			res, err := next(ctx)
			order = append(order, name+"-after")
			return res, err
		}
	}

	chain := middleware.Chain(wrap("mw1"), wrap("mw2"))
	res, err := chain(context.Background(), newTestJob(), func(ctx context.Context) (*job.Result, error) {
		order = append(order, "handler")
		return okHandler(ctx)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.Score != 90 {
		t.Fatalf("result not propagated: %+v", res)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	res, err := middleware.Chain()(context.Background(), newTestJob(), okHandler)
	if err != nil || res == nil {
		t.Fatalf("empty chain = (%v, %v)", res, err)
	}
}

func TestChain_PropagatesError(t *testing.T) {
	want := errors.New("evaluator error")
	pass := func(ctx context.Context, _ *job.Job, next middleware.Handler) (*job.Result, error) {
		return next(ctx)
	}

	_, err := middleware.Chain(pass)(context.Background(), newTestJob(), func(context.Context) (*job.Result, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover(t *testing.T) {
	mw := middleware.Recover(discardLogger())

	t.Run("panic becomes error", func(t *testing.T) {
		res, err := mw(context.Background(), newTestJob(), func(context.Context) (*job.Result, error) {
			panic("test panic")
		})
		if !errors.Is(err, evalqueue.ErrEvaluatorPanic) {
			t.Fatalf("err = %v, want ErrEvaluatorPanic", err)
		}
		if res != nil {
			t.Errorf("result = %+v, want nil", res)
		}
	})

	t.Run("passes through", func(t *testing.T) {
		res, err := mw(context.Background(), newTestJob(), okHandler)
		if err != nil || res == nil {
			t.Fatalf("got (%v, %v)", res, err)
		}
	})
}

func TestLogging(t *testing.T) {
	mw := middleware.Logging(discardLogger())

	if _, err := mw(context.Background(), newTestJob(), okHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := errors.New("fail")
	_, err := mw(context.Background(), newTestJob(), func(context.Context) (*job.Result, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		timeout  time.Duration
		work     time.Duration
		wantErr  error
		wantDone bool
	}{
		{name: "finishes in time", timeout: 200 * time.Millisecond, work: 10 * time.Millisecond, wantDone: true},
		{name: "times out", timeout: 50 * time.Millisecond, work: 200 * time.Millisecond, wantErr: evalqueue.ErrProcessingTimeout},
		{name: "disabled", timeout: 0, work: 10 * time.Millisecond, wantDone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw := middleware.Timeout(tt.timeout)
			start := time.Now()
			res, err := mw(context.Background(), newTestJob(), func(ctx context.Context) (*job.Result, error) {
				select {
				case <-time.After(tt.work):
					return okHandler(ctx)
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if elapsed := time.Since(start); elapsed >= tt.work {
					t.Errorf("timeout returned after %v, expected before %v", elapsed, tt.work)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantDone && res == nil {
				t.Error("expected a result")
			}
		})
	}
}

func TestTimeout_CancelsInnerContext(t *testing.T) {
	mw := middleware.Timeout(20 * time.Millisecond)

	cancelled := make(chan struct{})
	_, err := mw(context.Background(), newTestJob(), func(ctx context.Context) (*job.Result, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	if !errors.Is(err, evalqueue.ErrProcessingTimeout) {
		t.Fatalf("err = %v, want ErrProcessingTimeout", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("inner context was not cancelled after timeout")
	}
}

func TestTimeout_ParentCancel(t *testing.T) {
	mw := middleware.Timeout(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := mw(ctx, newTestJob(), func(ctx context.Context) (*job.Result, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return okHandler(ctx)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTimeout_PanicReachesRecover(t *testing.T) {
	chain := middleware.Chain(
		middleware.Recover(discardLogger()),
		middleware.Timeout(time.Second),
	)

	_, err := chain(context.Background(), newTestJob(), func(context.Context) (*job.Result, error) {
		panic("inside race")
	})
	if !errors.Is(err, evalqueue.ErrEvaluatorPanic) {
		t.Fatalf("err = %v, want ErrEvaluatorPanic", err)
	}
}
