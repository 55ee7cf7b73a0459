// Package event provides the in-process event bus that notifies
// listeners of job lifecycle transitions and stats changes.
package event

import (
	"time"

	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
	"github.com/aliendabz/evalqueue/stats"
)

// Kind identifies the lifecycle transition an event reports.
type Kind string

const (
	KindItemAdded     Kind = "item_added"
	KindItemStarted   Kind = "item_started"
	KindItemCompleted Kind = "item_completed"
	KindItemFailed    Kind = "item_failed"
	KindItemCancelled Kind = "item_cancelled"
	KindQueueUpdated  Kind = "queue_updated"
)

// Kinds lists every event kind.
func Kinds() []Kind {
	return []Kind{
		KindItemAdded, KindItemStarted, KindItemCompleted,
		KindItemFailed, KindItemCancelled, KindQueueUpdated,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Event is a lifecycle notification. Job events carry a snapshot of the
// job; queue_updated carries Stats instead. Snapshots are copies, so
// handlers cannot reach queue state through them.
type Event struct {
	ID        id.EventID        `json:"id"`
	Kind      Kind              `json:"kind"`
	Job       *job.Job          `json:"job,omitempty"`
	Stats     *stats.QueueStats `json:"stats,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ForJob builds a job event around a copy of j.
func ForJob(kind Kind, j *job.Job) Event {
	return Event{
		ID:        id.NewEventID(),
		Kind:      kind,
		Job:       j.Clone(),
		Timestamp: time.Now().UTC(),
	}
}

// ForStats builds a queue_updated event.
func ForStats(s stats.QueueStats) Event {
	return Event{
		ID:        id.NewEventID(),
		Kind:      KindQueueUpdated,
		Stats:     &s,
		Timestamp: time.Now().UTC(),
	}
}

// UserID returns the owner of the job the event refers to, or an empty
// string for queue_updated.
func (e Event) UserID() string {
	if e.Job == nil {
		return ""
	}
	return e.Job.UserID
}
