package events

import (
	"testing"
	"time"
)

func TestChannelBusDeliversToSubscribers(t *testing.T) {
	bus := NewChannelBus()
	defer bus.Close()

	routeCh := bus.Subscribe(RouteChanged)
	otherCh := bus.Subscribe(EarningsRecomputed)

	bus.Publish(Event{Kind: RouteChanged, RouteID: "r1"})

	select {
	case e := <-routeCh:
		if e.RouteID != "r1" {
			t.Fatalf("route id = %q, want r1", e.RouteID)
		}
		if e.At.IsZero() {
			t.Fatalf("event timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber did not receive the event")
	}

	select {
	case e := <-otherCh:
		t.Fatalf("unexpected event on another kind: %+v", e)
	default:
	}
}

func TestChannelBusPublishNeverBlocks(t *testing.T) {
	bus := NewChannelBus()
	defer bus.Close()

	bus.Subscribe(NotificationCreated)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(Event{Kind: NotificationCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestChannelBusCloseIsIdempotent(t *testing.T) {
	bus := NewChannelBus()
	ch := bus.Subscribe(RouteChanged)

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Fatalf("subscriber channel still open after close")
	}

	// Publicar após o fechamento é um no-op.
	bus.Publish(Event{Kind: RouteChanged})
}
