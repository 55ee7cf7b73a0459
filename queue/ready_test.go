package queue

import (
	"testing"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/id"
)

func drain(r *Ready) []id.JobID {
	var out []id.JobID
	for {
		e, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, e.JobID)
	}
}

func TestReady_PriorityThenPosition(t *testing.T) {
	r := NewReady(evalqueue.DefaultPriorityWeights())

	low := id.NewJobID()
	high := id.NewJobID()
	normal := id.NewJobID()
	urgent := id.NewJobID()
	high2 := id.NewJobID()

	r.Push(low, evalqueue.PriorityLow, 1)
	r.Push(high, evalqueue.PriorityHigh, 2)
	r.Push(normal, evalqueue.PriorityNormal, 3)
	r.Push(urgent, evalqueue.PriorityUrgent, 4)
	r.Push(high2, evalqueue.PriorityHigh, 5)

	if r.Len() != 5 {
		t.Fatalf("Len = %d, want 5", r.Len())
	}

	want := []id.JobID{urgent, high, high2, normal, low}
	got := drain(r)
	if len(got) != len(want) {
		t.Fatalf("drained %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i].String() {
			t.Errorf("pop %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReady_FIFOWithinPriority(t *testing.T) {
	r := NewReady(evalqueue.DefaultPriorityWeights())

	ids := make([]id.JobID, 10)
	// Insert out of position order.
	for i := range ids {
		ids[i] = id.NewJobID()
	}
	for i := len(ids) - 1; i >= 0; i-- {
		r.Push(ids[i], evalqueue.PriorityNormal, uint64(i+1))
	}

	got := drain(r)
	for i := range ids {
		if got[i].String() != ids[i].String() {
			t.Fatalf("pop %d = %s, want %s", i, got[i], ids[i])
		}
	}
}

func TestReady_Remove(t *testing.T) {
	r := NewReady(evalqueue.DefaultPriorityWeights())

	a, b, c := id.NewJobID(), id.NewJobID(), id.NewJobID()
	r.Push(a, evalqueue.PriorityNormal, 1)
	r.Push(b, evalqueue.PriorityNormal, 2)
	r.Push(c, evalqueue.PriorityNormal, 3)

	if !r.Remove(b) {
		t.Fatal("Remove returned false for queued job")
	}
	if r.Remove(b) {
		t.Error("second Remove returned true")
	}
	if r.Contains(b) {
		t.Error("removed job still contained")
	}

	got := drain(r)
	if len(got) != 2 || got[0].String() != a.String() || got[1].String() != c.String() {
		t.Errorf("drained %v, want [%s %s]", got, a, c)
	}
}

func TestReady_PushReplaces(t *testing.T) {
	r := NewReady(evalqueue.DefaultPriorityWeights())

	a, b := id.NewJobID(), id.NewJobID()
	r.Push(a, evalqueue.PriorityNormal, 1)
	r.Push(b, evalqueue.PriorityNormal, 2)
	// Requeue a at the tail.
	r.Push(a, evalqueue.PriorityNormal, 3)

	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	head, _ := r.Peek()
	if head.JobID.String() != b.String() {
		t.Errorf("head = %s, want %s", head.JobID, b)
	}
}

func TestReady_Ahead(t *testing.T) {
	r := NewReady(evalqueue.DefaultPriorityWeights())

	r.Push(id.NewJobID(), evalqueue.PriorityHigh, 1)
	r.Push(id.NewJobID(), evalqueue.PriorityNormal, 2)
	r.Push(id.NewJobID(), evalqueue.PriorityLow, 3)

	tests := []struct {
		name     string
		priority evalqueue.Priority
		position uint64
		want     int
	}{
		{"urgent jumps everything", evalqueue.PriorityUrgent, 10, 0},
		{"new high behind queued high", evalqueue.PriorityHigh, 10, 1},
		{"new normal", evalqueue.PriorityNormal, 10, 2},
		{"queued normal itself", evalqueue.PriorityNormal, 2, 1},
		{"new low", evalqueue.PriorityLow, 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Ahead(tt.priority, tt.position); got != tt.want {
				t.Errorf("Ahead = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReady_Clear(t *testing.T) {
	r := NewReady(evalqueue.DefaultPriorityWeights())
	a := id.NewJobID()
	r.Push(a, evalqueue.PriorityLow, 1)
	r.Clear()

	if r.Len() != 0 || r.Contains(a) {
		t.Error("queue not empty after Clear")
	}
	if _, ok := r.Pop(); ok {
		t.Error("Pop succeeded on cleared queue")
	}
}
