package engine

import "sync"

// Event identifies a cache-invalidation event kind. Subscribers use events
// to re-read engine state after a mutation; the event carries no payload.
type Event int

const (
	// EventActivities fires when the set of stored activities changes.
	EventActivities Event = iota + 1
	// EventGroups fires when route groups change.
	EventGroups
	// EventSections fires when detected sections change.
	EventSections
	// EventSyncReset fires when all engine state is cleared.
	EventSyncReset
)

func (e Event) String() string {
	switch e {
	case EventActivities:
		return "activities"
	case EventGroups:
		return "groups"
	case EventSections:
		return "sections"
	case EventSyncReset:
		return "syncReset"
	default:
		return "unknown"
	}
}

// Callback is invoked synchronously when its event fires.
type Callback func()

// Subscription is the handle returned by Subscribe. Unsubscribe removes the
// callback; calling it more than once is a no-op.
type Subscription struct {
	bus   *eventBus
	event Event
	id    uint64
}

// Unsubscribe removes the callback from the bus.
func (s *Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.remove(s.event, s.id)
	s.bus = nil
}

type busEntry struct {
	id uint64
	fn Callback
}

// eventBus maps event kinds to callbacks in registration order.
//
// Notification is synchronous and iterates a snapshot of the listener set,
// so a callback may subscribe or unsubscribe during delivery. A callback
// must NOT cause the same event to be re-notified while it is being
// delivered; re-entrant notification of the same event is unsupported.
type eventBus struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[Event][]busEntry
}

func newEventBus() *eventBus {
	return &eventBus{entries: make(map[Event][]busEntry)}
}

func (b *eventBus) subscribe(e Event, fn Callback) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.entries[e] = append(b.entries[e], busEntry{id: b.nextID, fn: fn})
	return &Subscription{bus: b, event: e, id: b.nextID}
}

func (b *eventBus) remove(e Event, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.entries[e]
	for i, entry := range entries {
		if entry.id == id {
			b.entries[e] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// notify invokes all callbacks registered for e, synchronously, in
// registration order. Callbacks run outside the lock on a snapshot.
func (b *eventBus) notify(e Event) {
	b.mu.Lock()
	entries := make([]busEntry, len(b.entries[e]))
	copy(entries, b.entries[e])
	b.mu.Unlock()

	for _, entry := range entries {
		entry.fn()
	}
}
