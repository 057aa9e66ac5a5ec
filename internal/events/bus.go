// Package events is the in-process fan-out point for bus state transitions.
// The engine publishes each committed transition exactly once; the websocket
// stream and the NATS publisher subscribe here.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/helmcode/crew-bus/internal/protocol"
)

// Handler receives a published event. Each subscriber has one delivery
// goroutine, so a handler sees events in publish order and never runs
// concurrently with itself.
type Handler func(ctx context.Context, ev *protocol.Event)

type delivery struct {
	ctx context.Context
	ev  *protocol.Event
}

type subscriber struct {
	id      uint64
	handler Handler

	mu      sync.Mutex
	queue   []delivery
	stopped bool
	wake    chan struct{}
}

func (s *subscriber) enqueue(d delivery) {
	s.mu.Lock()
	s.queue = append(s.queue, d)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Bus is a goroutine-safe publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	typed  map[protocol.EventType][]*subscriber
	all    []*subscriber
	closed bool
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates an event bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		typed:  make(map[protocol.EventType][]*subscriber),
		logger: logger,
	}
}

// Publish queues ev for every subscriber of its type and every catch-all
// subscriber. It does not wait for handlers. Panicking handlers are
// recovered and logged.
func (b *Bus) Publish(ctx context.Context, ev *protocol.Event) {
	if b == nil || ev == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	d := delivery{ctx: ctx, ev: ev}
	for _, sub := range b.typed[ev.Type] {
		b.wg.Add(1)
		sub.enqueue(d)
	}
	for _, sub := range b.all {
		b.wg.Add(1)
		sub.enqueue(d)
	}
}

// run drains sub's queue until it is stopped and empty.
func (b *Bus) run(sub *subscriber) {
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.stopped {
			sub.mu.Unlock()
			<-sub.wake
			sub.mu.Lock()
		}
		batch := sub.queue
		sub.queue = nil
		sub.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, d := range batch {
			b.deliver(sub, d)
		}
	}
}

func (b *Bus) deliver(sub *subscriber, d delivery) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", string(d.ev.Type), "panic", r)
		}
	}()
	sub.handler(d.ctx, d.ev)
}

func (b *Bus) newSubscriber(handler Handler) *subscriber {
	sub := &subscriber{id: b.nextID.Add(1), handler: handler, wake: make(chan struct{}, 1)}
	go b.run(sub)
	return sub
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function. Events already queued for the handler are still
// delivered after unsubscribing.
func (b *Bus) Subscribe(eventType protocol.EventType, handler Handler) func() {
	sub := b.newSubscriber(handler)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.typed[eventType] = without(b.typed[eventType], sub.id)
			b.mu.Unlock()
			sub.stop()
		})
	}
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) func() {
	sub := b.newSubscriber(handler)

	b.mu.Lock()
	b.all = append(b.all, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.all = without(b.all, sub.id)
			b.mu.Unlock()
			sub.stop()
		})
	}
}

// Wait blocks until every queued event has been handled. Callers must not
// publish concurrently with Wait.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Close stops accepting events, drains queued deliveries and stops every
// subscriber goroutine. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := append([]*subscriber(nil), b.all...)
	for _, typed := range b.typed {
		subs = append(subs, typed...)
	}
	b.mu.Unlock()

	b.wg.Wait()
	for _, sub := range subs {
		sub.stop()
	}
}

func without(subs []*subscriber, id uint64) []*subscriber {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
