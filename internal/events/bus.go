package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventTaskCreated is published when a task joins a production.
	EventTaskCreated EventType = "task_created"
	// EventTaskDeleted is published once per task removed, children included.
	EventTaskDeleted EventType = "task_deleted"
	// EventStatusChanged is published for every workflow transition.
	EventStatusChanged EventType = "status_changed"
	// EventHierarchyChanged is published when a task is attached to or detached from a parent.
	EventHierarchyChanged EventType = "hierarchy_changed"
	// EventDependencyAdded and EventDependencyRemoved track depends-on edges.
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	// EventScheduleChanged is published when timing or the date range of a task moves.
	EventScheduleChanged EventType = "schedule_changed"
	// EventTimeLogCreated, EventTimeLogResized and EventTimeLogDeleted track bookings.
	EventTimeLogCreated EventType = "time_log_created"
	EventTimeLogResized EventType = "time_log_resized"
	EventTimeLogDeleted EventType = "time_log_deleted"
	// EventReviewRequested and EventReviewDecided track review sets.
	EventReviewRequested EventType = "review_requested"
	EventReviewDecided   EventType = "review_decided"
)

// AllEventTypes lists every type the engine publishes.
var AllEventTypes = []EventType{
	EventTaskCreated,
	EventTaskDeleted,
	EventStatusChanged,
	EventHierarchyChanged,
	EventDependencyAdded,
	EventDependencyRemoved,
	EventScheduleChanged,
	EventTimeLogCreated,
	EventTimeLogResized,
	EventTimeLogDeleted,
	EventReviewRequested,
	EventReviewDecided,
}

// Event represents a system event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus using Publish/Subscribe pattern.
// Events are delivered asynchronously via buffered channels.
// If a subscriber's channel is full, the event is dropped.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	wg          sync.WaitGroup
	dropped     atomic.Int64
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for a specific event type.
// The subscriber function is called asynchronously in a goroutine.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range ch {
			func() {
				// a panicking subscriber must not take the bus down
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// SubscribeAll registers fn for every event type in AllEventTypes.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	unsubs := make([]func(), 0, len(AllEventTypes))
	for _, et := range AllEventTypes {
		unsubs = append(unsubs, b.Subscribe(et, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish sends an event to all subscribers of the given type without blocking.
// If a subscriber's channel is full, the event is dropped for that subscriber.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels and waits until every pending event
// has been delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
