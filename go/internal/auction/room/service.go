package room

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/liveauction/go/internal/auction/bidding"
	"github.com/mcdev12/liveauction/go/internal/auction/gate"
	"github.com/mcdev12/liveauction/go/internal/auction/roomapi"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// RoomApp defines what the service layer needs from the room app
type RoomApp interface {
	Name() string
	State() StateView
	SubmitBid(ctx context.Context, session models.SessionContext, amount decimal.Decimal) (*SubmitResult, error)
	PauseAuction(ctx context.Context, session models.SessionContext) error
	ResumeAuction(ctx context.Context, session models.SessionContext) error
	CloseAuction(ctx context.Context, session models.SessionContext) error
}

// SessionResolver turns the authenticated user id into a session context.
type SessionResolver interface {
	Resolve(ctx context.Context, userID string) (models.SessionContext, error)
}

// Service implements the RoomService connect interface
type Service struct {
	app      RoomApp
	sessions SessionResolver
}

// NewService creates a new room service
func NewService(app RoomApp, sessions SessionResolver) *Service {
	return &Service{
		app:      app,
		sessions: sessions,
	}
}

var _ roomapi.RoomServiceHandler = (*Service)(nil)

// GetState returns the current derived state and whether the caller may bid right now.
func (s *Service) GetState(ctx context.Context, req *connect.Request[roomapi.GetStateRequest]) (*connect.Response[roomapi.GetStateResponse], error) {
	session, err := s.session(ctx, req.Header().Get(roomapi.UserIDHeader))
	if err != nil {
		return nil, err
	}

	view := s.app.State()
	decision := gate.CanBid(session, view.Status)

	resp := &roomapi.GetStateResponse{
		State:      view.Snapshot,
		MinNextBid: view.MinNextBid,
		CanBid:     decision.Permit,
		Action:     decision.Action,
	}
	if decision.Reason != nil {
		resp.Reason = decision.Reason.Error()
	}
	return connect.NewResponse(resp), nil
}

// SubmitBid places a bid on behalf of the caller.
func (s *Service) SubmitBid(ctx context.Context, req *connect.Request[roomapi.SubmitBidRequest]) (*connect.Response[roomapi.SubmitBidResponse], error) {
	session, err := s.session(ctx, req.Header().Get(roomapi.UserIDHeader))
	if err != nil {
		return nil, err
	}

	amount, err := bidding.ParseAmount(req.Msg.Amount)
	if err != nil {
		// gate reasons take precedence over a malformed amount
		if d := gate.CanBid(session, s.app.State().Status); !d.Permit {
			return nil, toConnectError(d.Reason)
		}
		return nil, toConnectError(err)
	}

	result, err := s.app.SubmitBid(ctx, session, amount)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&roomapi.SubmitBidResponse{
		Bid:        result.Bid,
		MinNextBid: result.MinNextBid,
	}), nil
}

func (s *Service) PauseAuction(ctx context.Context, req *connect.Request[roomapi.LifecycleRequest]) (*connect.Response[roomapi.LifecycleResponse], error) {
	return s.lifecycle(ctx, req, models.RoomStatusPaused, s.app.PauseAuction)
}

func (s *Service) ResumeAuction(ctx context.Context, req *connect.Request[roomapi.LifecycleRequest]) (*connect.Response[roomapi.LifecycleResponse], error) {
	return s.lifecycle(ctx, req, models.RoomStatusActive, s.app.ResumeAuction)
}

func (s *Service) CloseAuction(ctx context.Context, req *connect.Request[roomapi.LifecycleRequest]) (*connect.Response[roomapi.LifecycleResponse], error) {
	return s.lifecycle(ctx, req, models.RoomStatusEnded, s.app.CloseAuction)
}

func (s *Service) lifecycle(
	ctx context.Context,
	req *connect.Request[roomapi.LifecycleRequest],
	target models.RoomStatus,
	op func(context.Context, models.SessionContext) error,
) (*connect.Response[roomapi.LifecycleResponse], error) {
	session, err := s.session(ctx, req.Header().Get(roomapi.UserIDHeader))
	if err != nil {
		return nil, err
	}
	if err := op(ctx, session); err != nil {
		return nil, toConnectError(err)
	}
	// the reducer only changes once the feed replays the update, so report the requested status
	return connect.NewResponse(&roomapi.LifecycleResponse{
		Room:   s.app.Name(),
		Status: target,
	}), nil
}

func (s *Service) session(ctx context.Context, userID string) (models.SessionContext, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || s.sessions == nil {
		return models.Anonymous, nil
	}
	session, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to resolve session")
		return models.Anonymous, connect.NewError(connect.CodeUnavailable, err)
	}
	return session, nil
}

// toConnectError maps gate, validator and backend errors onto connect codes.
// The reason and corrective action travel as error metadata.
func toConnectError(err error) *connect.Error {
	var (
		code   connect.Code
		reason string
		action = gate.ActionNone
	)

	var below *bidding.BelowMinimumError
	var backend *BackendError

	switch {
	case errors.Is(err, gate.ErrNotAuthenticated):
		code, reason, action = connect.CodeUnauthenticated, "not_authenticated", gate.ActionPromptLogin
	case errors.Is(err, gate.ErrProfileIncomplete):
		code, reason, action = connect.CodeFailedPrecondition, "profile_incomplete", gate.ActionPromptProfileCompletion
	case errors.Is(err, gate.ErrAuctionClosed), errors.Is(err, bidding.ErrAuctionNotActive):
		code, reason = connect.CodeFailedPrecondition, "auction_closed"
	case errors.Is(err, gate.ErrNotAdmin):
		code, reason = connect.CodePermissionDenied, "not_admin"
	case errors.Is(err, ErrInvalidTransition):
		code, reason = connect.CodeFailedPrecondition, "invalid_transition"
	case errors.Is(err, bidding.ErrInvalidAmount):
		code, reason = connect.CodeInvalidArgument, "invalid_amount"
	case errors.As(err, &below):
		code, reason = connect.CodeInvalidArgument, "below_minimum"
	case errors.Is(err, ErrRoomNotFound):
		code, reason = connect.CodeNotFound, "room_not_found"
	case errors.As(err, &backend):
		if backend.Kind == KindConstraintViolation {
			code, reason = connect.CodeAborted, string(KindConstraintViolation)
		} else {
			code, reason = connect.CodeUnavailable, string(KindConnectivity)
		}
	default:
		code, reason = connect.CodeInternal, "internal"
	}

	cerr := connect.NewError(code, err)
	cerr.Meta().Set(roomapi.ReasonHeader, reason)
	cerr.Meta().Set(roomapi.ActionHeader, string(action))
	if below != nil {
		cerr.Meta().Set(roomapi.MinAllowedHeader, below.Minimum.String())
	}
	return cerr
}
