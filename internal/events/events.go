// Package events provides a buffered publish/subscribe bus decoupling the
// task lifecycle from its observers (watch-mode rendering, notifications).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/docforge/docforge/internal/constants"
	"github.com/docforge/docforge/internal/models"
)

// EventType defines the kinds of events the bus carries.
type EventType string

const (
	EventUploadStarted  EventType = "upload_started"
	EventUploadProgress EventType = "upload_progress"
	EventUploadFinished EventType = "upload_finished"
	EventTaskState      EventType = "task_state"
	EventPollError      EventType = "poll_error"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// UploadEvent reports the lifecycle of one upload job.
type UploadEvent struct {
	BaseEvent
	JobID    string
	Filename string
	TaskType models.TaskType
	Fraction float64 // 0.0 to 1.0, monotone per job
	TaskID   string  // set on EventUploadFinished success
	Err      error   // set on EventUploadFinished failure
}

// TaskStateEvent reports one registry transition from a poll merge.
type TaskStateEvent struct {
	BaseEvent
	Task models.Task
	From models.TaskStatus
	To   models.TaskStatus
}

// PollErrorEvent reports an isolated status fetch failure. The affected
// task is downgraded to failed; siblings are untouched.
type PollErrorEvent struct {
	BaseEvent
	TaskID string
	Err    error
}

// Bus manages event subscriptions and publishing. Publishing never blocks;
// events to full subscriber buffers are dropped and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	all         []chan Event
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

// NewBus creates an event bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to every event.
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.all = append(b.all, ch)
	return ch
}

// Publish sends an event to all matching subscribers without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishTaskState is a convenience wrapper for registry transitions.
func (b *Bus) PublishTaskState(task models.Task, from, to models.TaskStatus) {
	b.Publish(&TaskStateEvent{
		BaseEvent: BaseEvent{EventType: EventTaskState, Time: time.Now()},
		Task:      task,
		From:      from,
		To:        to,
	})
}

// PublishUploadProgress is a convenience wrapper for upload fractions.
func (b *Bus) PublishUploadProgress(jobID, filename string, fraction float64) {
	b.Publish(&UploadEvent{
		BaseEvent: BaseEvent{EventType: EventUploadProgress, Time: time.Now()},
		JobID:     jobID,
		Filename:  filename,
		Fraction:  fraction,
	})
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

// Dropped returns the number of events discarded due to full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
