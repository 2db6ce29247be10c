package engine_test

import (
	"testing"

	"timebank-engine/internal/engine"
)

func TestNotifierDeliversInSubscriptionOrder(t *testing.T) {
	nt := engine.NewNotifier(testLogger())

	var order []string
	nt.Subscribe("evt", func(engine.Event) { order = append(order, "a") })
	nt.Subscribe("evt", func(engine.Event) { order = append(order, "b") })
	nt.Subscribe("other", func(engine.Event) { order = append(order, "x") })

	nt.Publish("evt", nil)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	nt := engine.NewNotifier(testLogger())

	calls := 0
	unsub := nt.Subscribe("evt", func(engine.Event) { calls++ })

	nt.Publish("evt", nil)
	unsub()
	unsub() // double unsubscribe is a no-op
	nt.Publish("evt", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestNotifierRecoversPanickingSubscriber(t *testing.T) {
	nt := engine.NewNotifier(testLogger())

	survived := false
	nt.Subscribe("evt", func(engine.Event) { panic("boom") })
	nt.Subscribe("evt", func(engine.Event) { survived = true })

	nt.Publish("evt", nil)
	if !survived {
		t.Fatal("a panicking subscriber must not block the rest")
	}
}

func TestNotifierPayloadAndName(t *testing.T) {
	nt := engine.NewNotifier(testLogger())

	var got engine.Event
	nt.Subscribe("evt", func(ev engine.Event) { got = ev })
	nt.Publish("evt", 42)

	if got.Name != "evt" {
		t.Fatalf("unexpected event name %q", got.Name)
	}
	if payload, ok := got.Payload.(int); !ok || payload != 42 {
		t.Fatalf("unexpected payload %v", got.Payload)
	}
}

func TestNotifierPublishWithoutSubscribers(t *testing.T) {
	nt := engine.NewNotifier(testLogger())
	nt.Publish("nobody-listens", "payload") // must not panic
}
