// Package stream fans queue lifecycle events out to streaming clients.
//
// A [Broker] subscribes to the event bus and copies every event, as a
// flat [Message], onto bounded per-subscriber channels grouped by topic.
// A subscriber that cannot keep up loses events rather than stalling the
// queue; the broker counts what it drops. A [Codec] turns messages into
// JSON or MessagePack frames for the wire.
package stream

import (
	"time"

	"github.com/aliendabz/evalqueue/event"
	"github.com/aliendabz/evalqueue/job"
	"github.com/aliendabz/evalqueue/stats"
)

// Message is the envelope sent to subscribers.
type Message struct {
	// ID is the originating event ID.
	ID string `json:"id" msgpack:"id"`

	// Kind is the lifecycle transition.
	Kind event.Kind `json:"kind" msgpack:"kind"`

	// Topic is the most specific topic the message was published on.
	Topic string `json:"topic" msgpack:"topic"`

	// Job is set for item events.
	Job *JobData `json:"job,omitempty" msgpack:"job,omitempty"`

	// Stats is set for queue_updated.
	Stats *StatsData `json:"stats,omitempty" msgpack:"stats,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// JobData is the job snapshot carried by item events.
type JobData struct {
	JobID           string  `json:"job_id" msgpack:"job_id"`
	UserID          string  `json:"user_id" msgpack:"user_id"`
	ProjectID       string  `json:"project_id" msgpack:"project_id"`
	State           string  `json:"state" msgpack:"state"`
	Priority        string  `json:"priority" msgpack:"priority"`
	Position        uint64  `json:"position" msgpack:"position"`
	RetryCount      int     `json:"retry_count" msgpack:"retry_count"`
	MaxRetries      int     `json:"max_retries" msgpack:"max_retries"`
	EstimatedWaitMs int64   `json:"estimated_wait_ms" msgpack:"estimated_wait_ms"`
	ProcessingMs    int64   `json:"processing_ms,omitempty" msgpack:"processing_ms,omitempty"`
	Error           string  `json:"error,omitempty" msgpack:"error,omitempty"`
	Score           float64 `json:"score,omitempty" msgpack:"score,omitempty"`
	MaxScore        float64 `json:"max_score,omitempty" msgpack:"max_score,omitempty"`
	Passed          bool    `json:"passed,omitempty" msgpack:"passed,omitempty"`
}

// StatsData is the queue snapshot carried by queue_updated.
type StatsData struct {
	Total           int   `json:"total" msgpack:"total"`
	Pending         int   `json:"pending" msgpack:"pending"`
	Processing      int   `json:"processing" msgpack:"processing"`
	Completed       int   `json:"completed" msgpack:"completed"`
	Failed          int   `json:"failed" msgpack:"failed"`
	Cancelled       int   `json:"cancelled" msgpack:"cancelled"`
	AvgWaitMs       int64 `json:"avg_wait_ms" msgpack:"avg_wait_ms"`
	AvgProcessingMs int64 `json:"avg_processing_ms" msgpack:"avg_processing_ms"`
	EstimatedMs     int64 `json:"estimated_queue_ms" msgpack:"estimated_queue_ms"`
}

// FromEvent flattens evt into a Message.
func FromEvent(evt event.Event) *Message {
	msg := &Message{
		ID:        evt.ID.String(),
		Kind:      evt.Kind,
		Timestamp: evt.Timestamp,
	}
	if evt.Job != nil {
		msg.Job = jobData(evt.Job)
		msg.Topic = JobTopic(msg.Job.JobID)
	}
	if evt.Stats != nil {
		msg.Stats = statsData(*evt.Stats)
		msg.Topic = TopicQueue
	}
	return msg
}

func jobData(j *job.Job) *JobData {
	d := &JobData{
		JobID:           j.ID.String(),
		UserID:          j.UserID,
		ProjectID:       j.ProjectID,
		State:           string(j.State),
		Priority:        string(j.Priority),
		Position:        j.Position,
		RetryCount:      j.RetryCount,
		MaxRetries:      j.MaxRetries,
		EstimatedWaitMs: j.EstimatedWaitTime.Milliseconds(),
		ProcessingMs:    j.ProcessingTime.Milliseconds(),
		Error:           j.Error,
	}
	if j.Result != nil {
		d.Score = j.Result.Score
		d.MaxScore = j.Result.MaxScore
		d.Passed = j.Result.Passed
	}
	return d
}

func statsData(s stats.QueueStats) *StatsData {
	return &StatsData{
		Total:           s.TotalItems,
		Pending:         s.PendingItems,
		Processing:      s.ProcessingItems,
		Completed:       s.CompletedItems,
		Failed:          s.FailedItems,
		Cancelled:       s.CancelledItems,
		AvgWaitMs:       s.AverageWaitTime.Milliseconds(),
		AvgProcessingMs: s.AverageProcessingTime.Milliseconds(),
		EstimatedMs:     s.EstimatedQueueTime.Milliseconds(),
	}
}
