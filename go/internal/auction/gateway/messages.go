package gateway

import (
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/room"
)

// MessageType represents the type of message pushed to websocket clients
type MessageType string

const (
	// MessageTypeState carries the full derived room state. Clients replace
	// whatever they hold with it.
	MessageTypeState MessageType = "state"
)

// Message is the frame sent to websocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Room      string          `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	State     *room.StateView `json:"state,omitempty"`
}

func stateMessage(view room.StateView, now time.Time) *Message {
	return &Message{
		Type:      MessageTypeState,
		Room:      view.Room,
		Timestamp: now.UTC(),
		State:     &view,
	}
}
