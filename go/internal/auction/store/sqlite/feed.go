package sqlite

import (
	"context"
	"sync"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 256

type subscriber struct {
	room   string
	events chan events.Event
	conn   chan bool
}

// Feed fans committed writes of a Store out to in-process subscribers.
type Feed struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
}

func newFeed() *Feed {
	return &Feed{subs: make(map[uint64]*subscriber)}
}

// Subscribe implements room.Feed. The connection channel reports true right away.
// A subscriber that falls behind loses events and sees a false/true blip, which makes
// the room resync from the store.
func (f *Feed) Subscribe(ctx context.Context, room string) (<-chan events.Event, <-chan bool, error) {
	sub := &subscriber{
		room:   room,
		events: make(chan events.Event, subscriberBuffer),
		conn:   make(chan bool, 4),
	}
	sub.conn <- true

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		close(sub.events)
		close(sub.conn)
	}()

	return sub.events, sub.conn, nil
}

func (f *Feed) publish(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs {
		if sub.room != ev.Room {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			log.Warn().
				Str("room", ev.Room).
				Str("event_type", string(ev.Type)).
				Msg("subscriber buffer full - dropping event")
			sub.reconnect()
		}
	}
}

// reconnect queues a disconnect followed by a reconnect. When there is no room
// for both, an unread pair is already queued and covers this drop too.
// Callers hold f.mu.
func (s *subscriber) reconnect() {
	if cap(s.conn)-len(s.conn) < 2 {
		return
	}
	s.conn <- false
	s.conn <- true
}
