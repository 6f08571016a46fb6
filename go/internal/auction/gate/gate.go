package gate

import (
	"errors"

	"github.com/mcdev12/liveauction/go/internal/models"
)

var (
	ErrNotAuthenticated  = errors.New("sign in to place a bid")
	ErrProfileIncomplete = errors.New("complete your profile to place a bid")
	ErrAuctionClosed     = errors.New("auction is not accepting bids")
	ErrNotAdmin          = errors.New("admin role required")
)

// Action is what the presentation layer should prompt the user to do after a denial.
type Action string

const (
	ActionNone                    Action = "none"
	ActionPromptLogin             Action = "prompt_login"
	ActionPromptProfileCompletion Action = "prompt_profile_completion"
)

// Decision is the outcome of a gate check. Reason is nil when Permit is true.
type Decision struct {
	Permit bool
	Reason error
	Action Action
}

// Err returns the denial reason, or nil if permitted.
func (d Decision) Err() error {
	if d.Permit {
		return nil
	}
	return d.Reason
}

var permit = Decision{Permit: true, Action: ActionNone}

// CanBid decides whether the session may submit a bid while the room is in status.
// Authentication is checked first, then profile completeness, then the room status.
func CanBid(session models.SessionContext, status models.RoomStatus) Decision {
	if !session.Authenticated {
		return Decision{Reason: ErrNotAuthenticated, Action: ActionPromptLogin}
	}
	if !session.ProfileComplete {
		return Decision{Reason: ErrProfileIncomplete, Action: ActionPromptProfileCompletion}
	}
	if status != models.RoomStatusActive {
		return Decision{Reason: ErrAuctionClosed, Action: ActionNone}
	}
	return permit
}

// CanAdminister decides whether the session may pause, resume or close the room.
func CanAdminister(session models.SessionContext) Decision {
	if !session.Authenticated {
		return Decision{Reason: ErrNotAuthenticated, Action: ActionPromptLogin}
	}
	if session.Role != models.RoleAdmin {
		return Decision{Reason: ErrNotAdmin, Action: ActionNone}
	}
	return permit
}
