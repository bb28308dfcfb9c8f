package core

import "sync"

const eventBuffer = 16

// Event notifies subscribers that a playlist's cached contents changed.
type Event struct {
	PlaylistID string
}

// Bus fans out playlist update notifications to subscribed views. Sibling
// views of the same playlist re-render from the shared cache on notification
// instead of holding mutable references into it.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned func unsubscribes and closes
// the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, eventBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers the event to all subscribers. Delivery is non-blocking: a
// subscriber that stopped draining its channel misses events rather than
// stalling the writer.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
