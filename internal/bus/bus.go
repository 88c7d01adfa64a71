// Package bus is the in-process publish/subscribe fabric connecting the
// pipeline stages to the gateway and to each other.
package bus

import (
	"log/slog"
	"sync"
)

// Topic identifies a stage output channel.
type Topic string

const (
	TopicTranscriptions Topic = "transcriptions"
	TopicTranslations   Topic = "translations"
	TopicDiarization    Topic = "diarization"
	TopicSummary        Topic = "summary"
	TopicStatus         Topic = "status"
)

// Event is a published message tagged with its originating topic.
type Event struct {
	Topic   Topic
	Payload any
}

// Subscription receives events for the topics it was registered with.
type Subscription struct {
	C    chan Event
	bus  *Bus
	tops []Topic
	once sync.Once
}

// Close unsubscribes and stops delivery. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
	})
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full loses the event, matching the at-most-once delivery
// tolerance of the pipeline.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic]map[*Subscription]struct{}
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[Topic]map[*Subscription]struct{})}
}

// Subscribe registers for one or more topics. The returned subscription must
// be closed when the consumer loop exits.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	sub := &Subscription{
		C:    make(chan Event, SubscriberBuffer),
		bus:  b,
		tops: topics,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.C)
		return sub
	}
	for _, t := range topics {
		if b.subs[t] == nil {
			b.subs[t] = make(map[*Subscription]struct{})
		}
		b.subs[t][sub] = struct{}{}
	}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, t := range sub.tops {
		if subs, ok := b.subs[t]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subs, t)
			}
		}
	}
	close(sub.C)
}

// Publish delivers the payload to every subscriber of the topic.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	ev := Event{Topic: topic, Payload: payload}
	for sub := range b.subs[topic] {
		select {
		case sub.C <- ev:
		default:
			slog.Debug("slow subscriber, event dropped", "topic", topic)
		}
	}
}

// Close shuts the bus down; subsequent publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	seen := make(map[*Subscription]struct{})
	for _, subs := range b.subs {
		for sub := range subs {
			if _, dup := seen[sub]; !dup {
				seen[sub] = struct{}{}
				close(sub.C)
			}
		}
	}
	b.subs = nil
}
