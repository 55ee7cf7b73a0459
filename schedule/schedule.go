// Package schedule runs keyed delayed tasks that can be revoked before
// they fire. The dispatcher uses it for retry delays: revoking a job's
// retry on cancellation or shutdown is a Cancel by job id.
package schedule

import (
	"sync"
	"time"
)

type task struct {
	timer *time.Timer
	token uint64
}

// Scheduler holds at most one pending task per key.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]task
	next    uint64
	stopped bool
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{tasks: make(map[string]task)}
}

// After runs fn once d has elapsed, replacing any task already pending
// under key. It returns false if the scheduler is stopped.
//
// fn runs on its own goroutine. A task revoked by Cancel, Stop or a
// replacing After never runs, even if its timer had already fired.
func (s *Scheduler) After(key string, d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}

	s.next++
	token := s.next
	s.tasks[key] = task{
		token: token,
		timer: time.AfterFunc(d, func() {
			if s.claim(key, token) {
				fn()
			}
		}),
	}
	return true
}

// claim removes the task if it is still the current one for key.
func (s *Scheduler) claim(key string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok || t.token != token {
		return false
	}
	delete(s.tasks, key)
	return true
}

// Cancel revokes the task pending under key. It reports whether one was
// pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Pending returns the number of tasks waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Has reports whether a task is pending under key.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Stop revokes every pending task and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}
