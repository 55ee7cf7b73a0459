package event

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/id"
)

// Handler receives events. A returned error or a panic is reported to
// the bus's ErrorReporter and never reaches the publisher.
type Handler func(evt Event) error

// ErrorReporter is the external collaborator that records subscriber
// failures.
type ErrorReporter interface {
	ReportError(subscriptionID id.SubscriptionID, evt Event, err error)
}

// LogReporter reports subscriber failures through a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// ReportError implements ErrorReporter.
func (r LogReporter) ReportError(subscriptionID id.SubscriptionID, evt Event, err error) {
	r.Logger.Error("event subscriber failed",
		slog.String("subscription_id", subscriptionID.String()),
		slog.String("event_kind", string(evt.Kind)),
		slog.String("error", err.Error()),
	)
}

type subscription struct {
	id      id.SubscriptionID
	kinds   map[Kind]struct{}
	handler Handler
}

func (s *subscription) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus is a synchronous publish/subscribe bus.
//
// Events are delivered in the order they were posted, to subscribers in
// subscription order. Delivery is serialized: a Publish issued from
// inside a handler, or concurrently from another goroutine, is queued
// and delivered by whichever caller is already draining.
type Bus struct {
	mu       sync.Mutex
	subs     []*subscription
	outbox   []Event
	draining bool

	reporter ErrorReporter
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithErrorReporter sets the collaborator that records handler failures.
func WithErrorReporter(r ErrorReporter) BusOption {
	return func(b *Bus) { b.reporter = r }
}

// NewBus creates an empty bus. Handler failures go to a LogReporter on
// logger unless WithErrorReporter overrides it.
func NewBus(logger *slog.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{reporter: LogReporter{Logger: logger}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for the given kinds. An empty kinds list
// subscribes to every kind.
func (b *Bus) Subscribe(kinds []Kind, h Handler) id.SubscriptionID {
	sub := &subscription{
		id:      id.NewSubscriptionID(),
		kinds:   make(map[Kind]struct{}, len(kinds)),
		handler: h,
	}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Copy-on-write so an in-progress delivery keeps its snapshot.
	subs := make([]*subscription, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, sub)
	return sub.id
}

// Unsubscribe removes a subscription. It reports whether the id was known.
func (b *Bus) Unsubscribe(subID id.SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id.String() != subID.String() {
			continue
		}
		subs := make([]*subscription, 0, len(b.subs)-1)
		subs = append(subs, b.subs[:i]...)
		b.subs = append(subs, b.subs[i+1:]...)
		return true
	}
	return false
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Clear drops every subscription and any undelivered events.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	b.outbox = nil
}

// Post queues evt for delivery without delivering it. Callers that
// mutate state under their own lock Post while holding it, so the
// outbox order matches the mutation order, and Flush after releasing it.
func (b *Bus) Post(evt Event) {
	b.mu.Lock()
	b.outbox = append(b.outbox, evt)
	b.mu.Unlock()
}

// Flush delivers queued events. It returns immediately if another call
// is already draining the outbox.
func (b *Bus) Flush() {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true

	for len(b.outbox) > 0 {
		evt := b.outbox[0]
		b.outbox = b.outbox[1:]
		subs := b.subs
		b.mu.Unlock()

		for _, s := range subs {
			if s.wants(evt.Kind) {
				b.deliver(s, evt)
			}
		}

		b.mu.Lock()
	}

	b.draining = false
	b.mu.Unlock()
}

// Publish posts evt and flushes.
func (b *Bus) Publish(evt Event) {
	b.Post(evt)
	b.Flush()
}

func (b *Bus) deliver(s *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.reporter.ReportError(s.id, evt,
				fmt.Errorf("%w: subscriber panic: %v\n%s", evalqueue.ErrSubscriberPanic, r, debug.Stack()))
		}
	}()
	if err := s.handler(evt); err != nil {
		b.reporter.ReportError(s.id, evt, err)
	}
}
