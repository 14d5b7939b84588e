package app

import (
	"sync"

	"pixeltrivia/internal/domain"
)

// broadcaster fans room snapshots out to subscribed clients. The store is
// still the system of record; this is the in-process realtime sink the
// websocket transport drains.
type broadcaster struct {
	mu    sync.Mutex
	rooms map[string]map[chan domain.RoomSnapshot]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{rooms: make(map[string]map[chan domain.RoomSnapshot]struct{})}
}

func (b *broadcaster) subscribe(code string, first domain.RoomSnapshot) (chan domain.RoomSnapshot, func()) {
	ch := make(chan domain.RoomSnapshot, 8)
	// Seed before registering: once the channel is in the map a concurrent
	// drop may close it, and a late send would panic.
	ch <- first

	b.mu.Lock()
	subs, ok := b.rooms[code]
	if !ok {
		subs = make(map[chan domain.RoomSnapshot]struct{})
		b.rooms[code] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs, ok := b.rooms[code]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.rooms, code)
		}
	}
	return ch, cancel
}

func (b *broadcaster) publish(code string, snap domain.RoomSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.rooms[code] {
		select {
		case ch <- snap:
		default:
			// A slow client must not block the room; drop its oldest
			// snapshot and deliver the newest.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// drop closes every subscription for a torn-down room.
func (b *broadcaster) drop(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.rooms[code] {
		close(ch)
	}
	delete(b.rooms, code)
}
