package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aliendabz/evalqueue/event"
)

// DefaultBufferSize is the default per-subscriber message buffer.
const DefaultBufferSize = 256

// Broker bridges the event bus to channel subscribers. Register
// [Broker.Handle] with the bus.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber message buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle is an event.Handler that publishes evt to its topics.
func (b *Broker) Handle(evt event.Event) error {
	msg := FromEvent(evt)
	delivered, dropped := b.topics.Broadcast(resolveTopics(msg), msg)
	b.totalPublished.Add(int64(delivered))
	if dropped > 0 {
		b.totalDropped.Add(int64(dropped))
		b.logger.Debug("stream subscribers lagging",
			slog.String("kind", string(msg.Kind)),
			slog.Int("dropped", dropped),
		)
	}
	return nil
}

// Subscribe creates a subscriber on topics. An existing subscriber with
// the same ID is replaced and closed.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	return b.SubscribeWith(NewSubscriber(subscriberID, b.bufferSize), topics...)
}

// SubscribeWith registers a prepared subscriber, for example one with a
// filter, on topics.
func (b *Broker) SubscribeWith(sub *Subscriber, topics ...string) *Subscriber {
	b.RemoveSubscriber(sub.ID())
	b.subscribers.Store(sub.ID(), sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// NewSubscriber creates an unregistered subscriber with the broker's
// buffer size.
func (b *Broker) NewSubscriber(subscriberID string) *Subscriber {
	return NewSubscriber(subscriberID, b.bufferSize)
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from every topic and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Close removes and closes every subscriber.
func (b *Broker) Close() {
	b.subscribers.Range(func(key, _ any) bool {
		b.RemoveSubscriber(key.(string)) //nolint:errcheck // keys are always strings
		return true
	})
	b.logger.Info("stream broker closed")
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}
