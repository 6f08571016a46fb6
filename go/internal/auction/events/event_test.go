package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shaped like the output of the notify_bid_inserted trigger.
const triggerBidNotification = `{
	"eventId": "6f1c8a3e-1d1b-4a53-9a3b-0d7cbe0f3e21",
	"eventType": "BidInserted",
	"room": "auction-room",
	"timestamp": "2025-03-14T18:00:01.5+00:00",
	"payload": {
		"id": "6f1c8a3e-1d1b-4a53-9a3b-0d7cbe0f3e21",
		"room": "auction-room",
		"bidder": "alice@example.com",
		"amount": "12.00",
		"inserted_at": "2025-03-14T18:00:01.123456+00:00"
	}
}`

const triggerStatusNotification = `{
	"eventId": "a6d0c1f4-3a9e-4d55-8b61-0bb0c3d2e111",
	"eventType": "RoomStatusChanged",
	"room": "auction-room",
	"timestamp": "2025-03-14T18:05:00+00:00",
	"payload": {"name": "auction-room", "status": "ended", "ends_at": "2025-03-14T18:05:00+00:00"}
}`

func TestEnvelope_DecodeTriggerBid(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(triggerBidNotification), &env))

	ev, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, EventTypeBidInserted, ev.Type)
	assert.Equal(t, models.DefaultRoomName, ev.Room)
	require.NotNil(t, ev.Bid)
	assert.Equal(t, uuid.MustParse("6f1c8a3e-1d1b-4a53-9a3b-0d7cbe0f3e21"), ev.Bid.ID)
	assert.True(t, ev.Bid.Amount.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, "alice@example.com", ev.Bid.Bidder)
	assert.True(t, ev.Bid.InsertedAt.Equal(time.Date(2025, 3, 14, 18, 0, 1, 123456000, time.UTC)))
}

func TestEnvelope_DecodeTriggerStatus(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(triggerStatusNotification), &env))

	ev, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, EventTypeRoomStatusChanged, ev.Type)
	require.NotNil(t, ev.StatusChange)
	assert.Equal(t, models.RoomStatusEnded, ev.StatusChange.Status)
	require.NotNil(t, ev.StatusChange.EndsAt)
}

func TestEnvelope_DecodeFillsRoomFromEnvelope(t *testing.T) {
	env := Envelope{
		EventType: EventTypeRoomStatusChanged,
		Room:      "auction-room",
		Payload:   json.RawMessage(`{"status":"paused"}`),
	}
	ev, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "auction-room", ev.Room)
	assert.Equal(t, "auction-room", ev.StatusChange.Room)
}

func TestEnvelope_DecodeErrors(t *testing.T) {
	_, err := Envelope{EventType: "BidRetracted", Payload: json.RawMessage(`{}`)}.Decode()
	assert.Error(t, err)

	_, err = Envelope{EventType: EventTypeBidInserted, Payload: json.RawMessage(`{"amount": "twelve"}`)}.Decode()
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	now := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	b := models.Bid{ID: uuid.New(), Room: "auction-room", Bidder: "bob", Amount: decimal.RequireFromString("13.50"), InsertedAt: now}

	env, err := Encode(b.ID.String(), BidInserted(b), now)
	require.NoError(t, err)
	assert.Equal(t, b.ID.String(), env.EventID)

	ev, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, b.ID, ev.Bid.ID)
	assert.True(t, ev.Bid.Amount.Equal(b.Amount))

	_, err = Encode("x", Event{Type: EventTypeBidInserted}, now)
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "auction.events.auction-room", Subject(DefaultSubjectPrefix, "auction-room"))
	assert.Equal(t, "auction.events.a_b_c_d", Subject(DefaultSubjectPrefix, "a.b*c>d"))
	assert.Equal(t, "auction.events._", Subject(DefaultSubjectPrefix, ""))
}
