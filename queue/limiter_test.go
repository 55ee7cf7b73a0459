package queue

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0, 0)
	if l.Enabled() {
		t.Fatal("zero-rate limiter reports enabled")
	}
	for range 100 {
		if !l.Allow("u1") {
			t.Fatal("disabled limiter rejected a submission")
		}
	}

	var nilLimiter *Limiter
	if !nilLimiter.Allow("u1") {
		t.Error("nil limiter rejected a submission")
	}
}

func TestLimiter_BurstPerUser(t *testing.T) {
	// A very slow refill so only the burst is available during the test.
	l := NewLimiter(0.001, 2)

	if !l.Allow("u1") || !l.Allow("u1") {
		t.Fatal("burst of 2 not honoured")
	}
	if l.Allow("u1") {
		t.Error("third submission allowed past burst")
	}
	if !l.Allow("u2") {
		t.Error("u2 limited by u1's bucket")
	}

	l.Forget("u1")
	if !l.Allow("u1") {
		t.Error("Forget did not reset u1")
	}

	l.Reset()
	if !l.Allow("u2") || !l.Allow("u2") {
		t.Error("Reset did not restore u2's burst")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(0.001, 5)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("u1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 5 {
		t.Errorf("allowed = %d, want 5", got)
	}
}
