package stream

import (
	"sync"
	"sync/atomic"
)

type sendResult int

const (
	sendOK sendResult = iota
	sendSkipped
	sendFull
)

// Subscriber receives messages from the topics it is on. Delivery never
// blocks: when the buffer is full the message is dropped and counted.
type Subscriber struct {
	id string
	ch chan *Message

	filter func(*Message) bool

	// mu orders sends against Close so nothing is sent on a closed
	// channel.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Subscriber{id: id, ch: make(chan *Message, bufferSize)}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only message channel. It is closed when the
// subscriber is removed.
func (s *Subscriber) C() <-chan *Message { return s.ch }

// SetFilter sets a predicate messages must match. Call it before the
// subscriber is registered with a broker.
func (s *Subscriber) SetFilter(fn func(*Message) bool) { s.filter = fn }

// Dropped returns how many messages were lost to a full buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

func (s *Subscriber) send(msg *Message) sendResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return sendSkipped
	}
	if s.filter != nil && !s.filter(msg) {
		return sendSkipped
	}
	select {
	case s.ch <- msg:
		return sendOK
	default:
		s.dropped.Add(1)
		return sendFull
	}
}

// Close closes the channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// ForUser returns a filter that passes userID's item events and every
// queue_updated snapshot.
func ForUser(userID string) func(*Message) bool {
	return func(m *Message) bool {
		return m.Job == nil || m.Job.UserID == userID
	}
}
