package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helmcode/crew-bus/internal/protocol"
)

func event(t protocol.EventType) *protocol.Event {
	return &protocol.Event{EventID: protocol.NewEventID(time.Now()), Type: t, Timestamp: time.Now().UTC()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.Subscribe(protocol.EventMessageSent, func(_ context.Context, ev *protocol.Event) {
		if ev.Type == protocol.EventMessageSent {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), event(protocol.EventMessageSent))
	bus.Publish(context.Background(), event(protocol.EventSessionStarted))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1 delivery, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ *protocol.Event) { got.Add(1) })

	bus.Publish(context.Background(), event(protocol.EventMessageSent))
	bus.Publish(context.Background(), event(protocol.EventAgentQuarantined))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)

	var typed, all atomic.Int32
	unsubTyped := bus.Subscribe(protocol.EventMessageSent, func(_ context.Context, _ *protocol.Event) { typed.Add(1) })
	unsubAll := bus.SubscribeAll(func(_ context.Context, _ *protocol.Event) { all.Add(1) })

	bus.Publish(context.Background(), event(protocol.EventMessageSent))
	bus.Wait()

	unsubTyped()
	unsubAll()
	bus.Publish(context.Background(), event(protocol.EventMessageSent))
	bus.Close()

	if typed.Load() != 1 || all.Load() != 1 {
		t.Fatalf("expected one delivery each, got typed=%d all=%d", typed.Load(), all.Load())
	}
}

func TestPanickingHandlerRecovered(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ *protocol.Event) { panic("boom") })
	bus.SubscribeAll(func(_ context.Context, _ *protocol.Event) { got.Add(1) })

	bus.Publish(context.Background(), event(protocol.EventMessageSent))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("healthy handler should still run, got %d", got.Load())
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ *protocol.Event) { got.Add(1) })
	bus.Close()
	bus.Close()

	bus.Publish(context.Background(), event(protocol.EventMessageSent))
	bus.Wait()
	if got.Load() != 0 {
		t.Fatalf("expected no deliveries after close, got %d", got.Load())
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(context.Background(), event(protocol.EventMessageSent))
}

func TestDeliveryPreservesPublishOrder(t *testing.T) {
	bus := New(nil)

	var (
		mu  sync.Mutex
		got []protocol.EventType
	)
	bus.SubscribeAll(func(_ context.Context, ev *protocol.Event) {
		if ev.Type == protocol.EventMessageSent {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})

	want := make([]protocol.EventType, 0, 100)
	for i := 0; i < 50; i++ {
		want = append(want, protocol.EventMessageSent, protocol.EventSessionEnded)
	}
	for _, typ := range want {
		bus.Publish(context.Background(), event(typ))
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d deliveries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestCloseWhilePublishing(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ *protocol.Event) { got.Add(1) })

	var wg sync.WaitGroup
	var published atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				bus.Publish(context.Background(), event(protocol.EventMessageSent))
				published.Add(1)
			}
		}()
	}
	bus.Close()
	wg.Wait()

	if got.Load() > published.Load() {
		t.Fatalf("delivered %d events but only %d were published", got.Load(), published.Load())
	}
}
