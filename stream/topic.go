package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names follow a pattern:
//
//	job:<jobID>    events for one job
//	user:<userID>  events for one user's jobs
//	jobs           every item event
//	queue          queue_updated snapshots
//	firehose       everything
const (
	TopicJobs     = "jobs"
	TopicQueue    = "queue"
	TopicFirehose = "firehose"
)

// JobTopic returns the topic name for a specific job.
func JobTopic(jobID string) string { return "job:" + jobID }

// UserTopic returns the topic name for a user's jobs.
func UserTopic(userID string) string { return "user:" + userID }

// TopicRegistry manages subscriber sets per topic. It is safe for
// concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]map[string]*Subscriber)}
}

// Subscribe adds a subscriber to a topic.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
}

// Unsubscribe removes a subscriber from a topic and drops the topic once
// it is empty.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.unsubscribeLocked(topic, subscriberID)
}

// UnsubscribeAll removes a subscriber from every topic.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for topic := range tr.topics {
		tr.unsubscribeLocked(topic, subscriberID)
	}
}

func (tr *TopicRegistry) unsubscribeLocked(topic, subscriberID string) {
	subs, ok := tr.topics[topic]
	if !ok {
		return
	}
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// Broadcast sends msg to every subscriber on any of topics, once per
// subscriber. It returns how many accepted it and how many dropped it.
func (tr *TopicRegistry) Broadcast(topics []string, msg *Message) (delivered, dropped int) {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for subID, sub := range tr.topics[topic] {
			seen[subID] = sub
		}
	}
	tr.mu.RUnlock()

	for _, sub := range seen {
		switch sub.send(msg) {
		case sendOK:
			delivered++
		case sendFull:
			dropped++
		}
	}
	return delivered, dropped
}

// TopicCount returns the number of active topics.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics returns every topic msg is published on.
func resolveTopics(msg *Message) []string {
	topics := []string{TopicFirehose}
	if msg.Job != nil {
		topics = append(topics, TopicJobs, JobTopic(msg.Job.JobID))
		if msg.Job.UserID != "" {
			topics = append(topics, UserTopic(msg.Job.UserID))
		}
	}
	if msg.Stats != nil {
		topics = append(topics, TopicQueue)
	}
	return topics
}

// ParseTopicEntity splits an entity topic. "job:job_01h..." returns
// ("job", "job_01h..."); global topics return ("", "").
func ParseTopicEntity(topic string) (entityType, entityID string) {
	entityType, entityID, ok := strings.Cut(topic, ":")
	if !ok {
		return "", ""
	}
	return entityType, entityID
}

// ValidateTopic checks whether a topic string is valid.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicQueue, TopicFirehose:
		return nil
	}

	entityType, entityID := ParseTopicEntity(topic)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	switch entityType {
	case "job", "user":
		return nil
	default:
		return fmt.Errorf("stream: unknown topic entity type %q", entityType)
	}
}
