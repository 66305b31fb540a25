package weather

import (
	"fmt"
	"log"
	"sync"
)

// Event is delivered to subscribers after a snapshot was replaced.
type Event struct {
	Key      LocationKey
	Snapshot WeatherSnapshot
}

// Handler consumes refresh events. Handlers must not modify the snapshot.
type Handler func(Event) error

// Subscription identifies a registered handler.
type Subscription struct {
	id uint64
}

type subscriber struct {
	key     LocationKey // empty means every key
	handler Handler
}

// Notifier fans out refresh events to every current subscriber.
type Notifier struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]subscriber
}

func NewNotifier() *Notifier {
	return &Notifier{handlers: make(map[uint64]subscriber)}
}

// Subscribe registers h for every key until Unsubscribe is called with the
// returned handle.
func (n *Notifier) Subscribe(h Handler) Subscription {
	return n.add(subscriber{handler: h})
}

// SubscribeKey registers h for events of a single location key.
func (n *Notifier) SubscribeKey(key LocationKey, h Handler) Subscription {
	return n.add(subscriber{key: key, handler: h})
}

func (n *Notifier) add(s subscriber) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	n.handlers[n.nextID] = s
	return Subscription{id: n.nextID}
}

// Unsubscribe removes the handler. Unknown or repeated handles are ignored.
func (n *Notifier) Unsubscribe(s Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.handlers, s.id)
}

// Subscribers reports the number of registered handlers.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}

// Publish calls every handler subscribed to key at the time of the call. A handler
// that fails or panics is logged and skipped; the rest still receive the event.
func (n *Notifier) Publish(key LocationKey, snapshot WeatherSnapshot) {
	n.mu.RLock()
	handlers := make([]Handler, 0, len(n.handlers))
	for _, s := range n.handlers {
		if s.key == "" || s.key == key {
			handlers = append(handlers, s.handler)
		}
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		ev := Event{Key: key, Snapshot: snapshot.Clone()}
		if err := deliver(h, ev); err != nil {
			log.Printf("ERROR: notifier: subscriber failed for %s: %v", key, err)
		}
	}
}

func deliver(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ev)
}
