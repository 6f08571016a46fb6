package natsfeed

import (
	"testing"
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusMsg = `{"eventId":"auction-room:paused:1741975200000000000","eventType":"RoomStatusChanged","room":"auction-room",
"timestamp":"2025-03-14T18:00:00Z","payload":{"name":"auction-room","status":"paused"}}`

func TestProcessMessage(t *testing.T) {
	ev, match, err := processMessage([]byte(statusMsg), models.DefaultRoomName)
	require.NoError(t, err)
	require.True(t, match)
	assert.Equal(t, events.EventTypeRoomStatusChanged, ev.Type)
	assert.Equal(t, models.RoomStatusPaused, ev.StatusChange.Status)

	_, match, err = processMessage([]byte(statusMsg), "other-room")
	require.NoError(t, err)
	assert.False(t, match)

	_, _, err = processMessage([]byte("{"), models.DefaultRoomName)
	assert.Error(t, err)

	_, _, err = processMessage([]byte(`{"eventType":"Unknown","room":"auction-room","payload":{}}`), models.DefaultRoomName)
	assert.Error(t, err)
}

func TestBroadcast(t *testing.T) {
	f := &Feed{subs: make(map[int]chan bool)}
	a := make(chan bool, 1)
	b := make(chan bool, 1)
	idA := f.addSub(a)
	f.addSub(b)

	f.broadcast(false)
	assert.False(t, <-a)
	assert.False(t, <-b)

	// b is full after this one; the next broadcast must not block
	f.broadcast(true)
	done := make(chan struct{})
	go func() {
		f.broadcast(false)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	assert.True(t, <-b)

	f.removeSub(idA)
	_, open := <-a
	for open {
		_, open = <-a
	}
	assert.Len(t, f.subs, 1)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "AUCTION_EVENTS", cfg.StreamName)
	assert.Equal(t, "auction.events.auction-room", events.Subject(cfg.SubjectPrefix, models.DefaultRoomName))
}
