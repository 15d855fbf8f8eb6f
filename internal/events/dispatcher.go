package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrDispatcherClosed is returned when publishing after Close.
	ErrDispatcherClosed = errors.New("events: dispatcher closed")
	// ErrQueueFull is returned when the asynchronous buffer has no room left.
	ErrQueueFull = errors.New("events: queue full")
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish synchronously invokes handlers for the given event.
// Every handler runs even when an earlier one fails.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// AsyncDispatcher hands events to a single delivery goroutine so publishers never
// wait on subscribers doing I/O.
type AsyncDispatcher struct {
	inner  *inMemoryDispatcher
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
}

// NewAsyncDispatcher creates a buffered dispatcher. Call Start before publishing.
func NewAsyncDispatcher(buffer int, logger *zap.Logger) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &AsyncDispatcher{
		inner:  &inMemoryDispatcher{listeners: make(map[EventType][]EventHandler)},
		logger: logger,
		queue:  make(chan queuedEvent, buffer),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (d *AsyncDispatcher) Start() {
	go func() {
		defer close(d.done)
		for q := range d.queue {
			if err := d.inner.Publish(q.ctx, q.event); err != nil {
				d.logger.Warn("event handler failed",
					zap.String("event_type", string(q.event.Type)),
					zap.String("event_id", q.event.ID),
					zap.Error(err))
			}
		}
	}()
}

// Publish enqueues the event without blocking. Events are dropped when the buffer is full.
func (d *AsyncDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		d.logger.Warn("event dropped", zap.String("event_type", string(event.Type)), zap.String("event_id", event.ID))
		return ErrQueueFull
	}
}

// Subscribe registers a handler for the given event type.
func (d *AsyncDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.inner.Subscribe(eventType, handler)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
