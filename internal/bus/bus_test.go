package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 4)
	defer unsub()

	b.PublishKind("session.state_changed", "AwaitingScan")
	b.PublishKind("sync.chats_replaced", 3)

	select {
	case evt := <-ch:
		if evt.Kind != "session.state_changed" {
			t.Errorf("kind = %q, want session.state_changed", evt.Kind)
		}
		if evt.Payload != "AwaitingScan" {
			t.Errorf("payload = %v, want AwaitingScan", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The sync event must not have reached the session subscriber.
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q", evt.Kind)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	unsub()

	b.PublishKind("session.state_changed", nil)

	select {
	case evt := <-ch:
		t.Fatalf("received %q after unsubscribe", evt.Kind)
	default:
	}
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.PublishKind("sync.message_appended", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
