package engine

import (
	"log/slog"
	"sync"
)

// Event is a named notification with a typed payload from internal/domain.
type Event struct {
	Name    string
	Payload any
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not mutate engine state.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Notifier fans events out to subscribers in insertion order. A panicking
// subscriber is recovered and logged so it cannot break the engine or the
// remaining subscribers.
type Notifier struct {
	log *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
}

func NewNotifier(log *slog.Logger) *Notifier {
	return &Notifier{
		log:  log,
		subs: make(map[string][]subscription),
	}
}

// Subscribe registers fn for the named event and returns an unsubscribe
// function. Unsubscribing twice is a no-op.
func (n *Notifier) Subscribe(event string, fn Handler) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[event] = append(n.subs[event], subscription{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		list := n.subs[event]
		for i, sub := range list {
			if sub.id == id {
				n.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes all current subscribers of the named event synchronously.
func (n *Notifier) Publish(event string, payload any) {
	n.mu.Lock()
	list := make([]subscription, len(n.subs[event]))
	copy(list, n.subs[event])
	n.mu.Unlock()

	ev := Event{Name: event, Payload: payload}
	for _, sub := range list {
		n.invoke(sub, ev)
	}
}

func (n *Notifier) invoke(sub subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("event subscriber panicked", "event", ev.Name, "panic", r)
		}
	}()
	sub.fn(ev)
}
