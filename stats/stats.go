// Package stats derives queue-wide counts and averages from a job set.
// Snapshots are recomputed from scratch on every call so they never
// drift from the store.
package stats

import (
	"time"

	"github.com/aliendabz/evalqueue/job"
)

// QueueStats is a point-in-time snapshot of the queue.
//
// PendingItems + ProcessingItems + CompletedItems + FailedItems +
// CancelledItems always equals TotalItems. Retrying jobs count as
// pending; evaluating jobs count as processing.
type QueueStats struct {
	TotalItems      int `json:"total_items"`
	PendingItems    int `json:"pending_items"`
	ProcessingItems int `json:"processing_items"`
	CompletedItems  int `json:"completed_items"`
	FailedItems     int `json:"failed_items"`
	CancelledItems  int `json:"cancelled_items"`

	AverageWaitTime       time.Duration `json:"average_wait_time"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	EstimatedQueueTime    time.Duration `json:"estimated_queue_time"`

	ComputedAt time.Time `json:"computed_at"`
}

// Compute builds a snapshot in a single pass over jobs. fallback is used
// as the average processing time until a job has completed. concurrency
// values below one are treated as one.
func Compute(jobs []*job.Job, concurrency int, fallback time.Duration, now time.Time) QueueStats {
	s := QueueStats{TotalItems: len(jobs), ComputedAt: now}

	var (
		waitSum, procSum     time.Duration
		waitCount, procCount int
	)
	for _, j := range jobs {
		switch j.State {
		case job.StatePending, job.StateRetrying:
			s.PendingItems++
		case job.StateProcessing, job.StateEvaluating:
			s.ProcessingItems++
		case job.StateCompleted:
			s.CompletedItems++
		case job.StateFailed:
			s.FailedItems++
		case job.StateCancelled:
			s.CancelledItems++
		}

		if j.StartedAt != nil {
			waitSum += j.WaitTime()
			waitCount++
		}
		if j.State == job.StateCompleted && j.ProcessingTime > 0 {
			procSum += j.ProcessingTime
			procCount++
		}
	}

	if waitCount > 0 {
		s.AverageWaitTime = waitSum / time.Duration(waitCount)
	}
	if procCount > 0 {
		s.AverageProcessingTime = procSum / time.Duration(procCount)
	}
	s.EstimatedQueueTime = QueueTime(s.PendingItems, concurrency, s.averageOr(fallback))
	return s
}

// ProcessingEstimate returns the observed average processing time, or
// fallback when nothing has completed yet.
func (s QueueStats) ProcessingEstimate(fallback time.Duration) time.Duration {
	return s.averageOr(fallback)
}

func (s QueueStats) averageOr(fallback time.Duration) time.Duration {
	if s.AverageProcessingTime > 0 {
		return s.AverageProcessingTime
	}
	return fallback
}

// QueueTime estimates how long it takes to drain pending jobs with
// concurrency workers each taking avg per job.
func QueueTime(pending, concurrency int, avg time.Duration) time.Duration {
	if pending <= 0 {
		return 0
	}
	return time.Duration(batches(pending, concurrency)) * avg
}

// EstimateWait estimates how long a job with ahead jobs in front of it
// waits before a worker claims it.
func EstimateWait(ahead, concurrency int, avg time.Duration) time.Duration {
	if ahead <= 0 {
		return 0
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return time.Duration(ahead/concurrency) * avg
}

func batches(n, concurrency int) int {
	if concurrency < 1 {
		concurrency = 1
	}
	return (n + concurrency - 1) / concurrency
}
