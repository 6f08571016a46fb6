package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/liveauction/go/internal/models"
)

// EventType represents the type of room event
type EventType string

const (
	EventTypeBidInserted       EventType = "BidInserted"
	EventTypeRoomStatusChanged EventType = "RoomStatusChanged"
)

// Event is a decoded room event as the reducer consumes it.
// Exactly one of Bid or StatusChange is set, matching Type.
type Event struct {
	Type         EventType
	Room         string
	Bid          *models.Bid
	StatusChange *RoomStatusChangedPayload
}

// BidInserted wraps b as an event.
func BidInserted(b models.Bid) Event {
	return Event{Type: EventTypeBidInserted, Room: b.Room, Bid: &b}
}

// RoomStatusChanged builds a status event for room.
func RoomStatusChanged(room string, status models.RoomStatus, endsAt *time.Time) Event {
	return Event{
		Type: EventTypeRoomStatusChanged,
		Room: room,
		StatusChange: &RoomStatusChangedPayload{
			Room:   room,
			Status: status,
			EndsAt: endsAt,
		},
	}
}

// Envelope is the wire format carried by pg notifications and JetStream messages.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	Room      string          `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode parses the envelope payload into an Event.
func (e Envelope) Decode() (Event, error) {
	switch e.EventType {
	case EventTypeBidInserted:
		var p BidInsertedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("unmarshal BidInserted payload: %w", err)
		}
		if p.Room == "" {
			p.Room = e.Room
		}
		return BidInserted(p.Bid()), nil

	case EventTypeRoomStatusChanged:
		var p RoomStatusChangedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("unmarshal RoomStatusChanged payload: %w", err)
		}
		if p.Room == "" {
			p.Room = e.Room
		}
		return RoomStatusChanged(p.Room, p.Status, p.EndsAt), nil

	default:
		return Event{}, fmt.Errorf("unknown event type: %s", e.EventType)
	}
}

// Encode builds the wire envelope for ev.
func Encode(eventID string, ev Event, now time.Time) (Envelope, error) {
	var (
		payload []byte
		err     error
	)
	switch ev.Type {
	case EventTypeBidInserted:
		if ev.Bid == nil {
			return Envelope{}, fmt.Errorf("BidInserted event without bid")
		}
		payload, err = json.Marshal(FromBid(*ev.Bid))
	case EventTypeRoomStatusChanged:
		if ev.StatusChange == nil {
			return Envelope{}, fmt.Errorf("RoomStatusChanged event without payload")
		}
		payload, err = json.Marshal(ev.StatusChange)
	default:
		return Envelope{}, fmt.Errorf("unknown event type: %s", ev.Type)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}

	return Envelope{
		EventID:   eventID,
		EventType: ev.Type,
		Room:      ev.Room,
		Timestamp: now.UTC(),
		Payload:   payload,
	}, nil
}

// Defaults for the JetStream fan-out of room events.
const (
	DefaultStreamName    = "AUCTION_EVENTS"
	DefaultSubjectPrefix = "auction.events"
)

// Subject returns the JetStream subject for a room's events. Characters that
// are special in NATS subjects are replaced.
func Subject(prefix, room string) string {
	return prefix + "." + subjectToken(room)
}

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	out := []byte(s)
	for i, c := range out {
		switch c {
		case '.', '*', '>', ' ', '\t':
			out[i] = '_'
		}
	}
	return string(out)
}
