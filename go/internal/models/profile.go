package models

import (
	"strings"

	"github.com/google/uuid"
)

// Role defines what a signed-in user may do in the room.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Profile holds the contact details a participant must fill in before bidding.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Address     string    `json:"address"`
	PostalCode  string    `json:"postal_code"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	PhoneNumber string    `json:"phone_number"`
}

// IsComplete reports whether every required contact field is filled in.
func (p *Profile) IsComplete() bool {
	if p == nil {
		return false
	}
	for _, field := range []string{
		p.FirstName, p.LastName, p.Address, p.PostalCode, p.City, p.Country, p.PhoneNumber,
	} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// SessionContext is what the bidding gate knows about the caller.
type SessionContext struct {
	Authenticated   bool   `json:"authenticated"`
	ProfileComplete bool   `json:"profile_complete"`
	Identity        string `json:"identity,omitempty"` // display identity, usually the email
	Role            Role   `json:"role,omitempty"`
}

// Anonymous is the session of a caller who is not signed in.
var Anonymous = SessionContext{}
