// Package events provides the in-process event bus the dispatcher publishes
// cycle and task activity on. It implements pub/sub with backpressure control
// and priority channels.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Timestamp() time.Time
	// Subject identifies what the event is about: a task ID for task events,
	// empty for cycle and config events.
	Subject() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Type string    `json:"type"`
	Time time.Time `json:"timestamp"`
	Subj string    `json:"subject,omitempty"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) Subject() string      { return e.Subj }

// NewBaseEvent creates a new base event stamped with the current time.
func NewBaseEvent(eventType, subject string) BaseEvent {
	return BaseEvent{
		Type: eventType,
		Time: time.Now().UTC(),
		Subj: subject,
	}
}

// Subscriber represents an event subscription.
type Subscriber struct {
	ch       chan Event
	types    map[string]bool // Empty means all types
	priority bool
}

func (s *Subscriber) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// EventBus provides pub/sub with backpressure control.
type EventBus struct {
	mu           sync.RWMutex
	subscribers  []*Subscriber
	prioritySubs []*Subscriber
	bufferSize   int
	droppedCount int64
	published    int64
	closed       bool
}

// New creates a new EventBus with the specified buffer size.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers:  make([]*Subscriber, 0),
		prioritySubs: make([]*Subscriber, 0),
		bufferSize:   bufferSize,
	}
}

// Subscribe creates a subscription for specific event types.
// If no types are specified, subscribes to all events.
// Subscribing to a closed bus returns a closed channel.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscriber{
		ch:    make(chan Event, eb.bufferSize),
		types: make(map[string]bool),
	}
	for _, t := range types {
		sub.types[t] = true
	}
	if eb.closed {
		close(sub.ch)
		return sub.ch
	}
	eb.subscribers = append(eb.subscribers, sub)
	return sub.ch
}

// SubscribePriority creates a priority subscription that never drops events.
// Priority subscribers must drain their channel; PublishPriority blocks on them.
func (eb *EventBus) SubscribePriority(types ...string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscriber{
		ch:       make(chan Event, 50),
		types:    make(map[string]bool),
		priority: true,
	}
	for _, t := range types {
		sub.types[t] = true
	}
	if eb.closed {
		close(sub.ch)
		return sub.ch
	}
	eb.prioritySubs = append(eb.prioritySubs, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers = removeSubscriber(eb.subscribers, ch)
	eb.prioritySubs = removeSubscriber(eb.prioritySubs, ch)
}

func removeSubscriber(subs []*Subscriber, ch <-chan Event) []*Subscriber {
	result := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.ch != ch {
			result = append(result, sub)
		} else {
			close(sub.ch)
		}
	}
	return result
}

// Publish sends an event to all matching regular subscribers.
// Subscribers with a full buffer lose their oldest event (ring buffer behavior).
// Publishing on a nil bus is a no-op.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	eb.publish(event)
}

// PublishPriority sends an event to regular subscribers and then, blocking,
// to matching priority subscribers.
func (eb *EventBus) PublishPriority(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	eb.publish(event)

	for _, sub := range eb.prioritySubs {
		if sub.wants(event.EventType()) {
			sub.ch <- event
		}
	}
}

// publish is the internal version that doesn't acquire the lock.
func (eb *EventBus) publish(event Event) {
	atomic.AddInt64(&eb.published, 1)
	eventType := event.EventType()

	for _, sub := range eb.subscribers {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Buffer full, drop oldest and try again
			select {
			case <-sub.ch:
				atomic.AddInt64(&eb.droppedCount, 1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				atomic.AddInt64(&eb.droppedCount, 1)
			}
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (eb *EventBus) DroppedCount() int64 {
	return atomic.LoadInt64(&eb.droppedCount)
}

// PublishedCount returns the number of events published since creation.
func (eb *EventBus) PublishedCount() int64 {
	return atomic.LoadInt64(&eb.published)
}

// SubscriberCount returns the number of active subscriptions.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers) + len(eb.prioritySubs)
}

// Close closes the event bus and all subscriber channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, sub := range eb.subscribers {
		close(sub.ch)
	}
	for _, sub := range eb.prioritySubs {
		close(sub.ch)
	}
	eb.subscribers = nil
	eb.prioritySubs = nil
}
