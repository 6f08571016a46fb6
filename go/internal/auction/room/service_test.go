package room

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/mcdev12/liveauction/go/internal/auction/gate"
	"github.com/mcdev12/liveauction/go/internal/auction/roomapi"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions map[string]models.SessionContext

func (s stubSessions) Resolve(_ context.Context, userID string) (models.SessionContext, error) {
	session, ok := s[userID]
	if !ok {
		return models.SessionContext{}, errors.New("identity backend down")
	}
	return session, nil
}

func newTestServer(t *testing.T) (roomapi.RoomServiceClient, *harness) {
	h := newHarness(t)
	svc := NewService(h.app, stubSessions{
		"u-alice": alice,
		"u-admin": admin,
	})

	mux := http.NewServeMux()
	path, handler := roomapi.NewRoomServiceHandler(svc)
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return roomapi.NewRoomServiceClient(srv.Client(), srv.URL), h
}

func withUser[T any](msg *T, userID string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if userID != "" {
		req.Header().Set(roomapi.UserIDHeader, userID)
	}
	return req
}

func TestService_GetState(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	resp, err := client.GetState(ctx, withUser(&roomapi.GetStateRequest{}, ""))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRoomName, resp.Msg.State.Room)
	assert.True(t, resp.Msg.State.CurrentAmount.Equal(dec(10)))
	assert.True(t, resp.Msg.MinNextBid.Equal(dec(11)))
	assert.False(t, resp.Msg.CanBid)
	assert.Equal(t, gate.ActionPromptLogin, resp.Msg.Action)

	resp, err = client.GetState(ctx, withUser(&roomapi.GetStateRequest{}, "u-alice"))
	require.NoError(t, err)
	assert.True(t, resp.Msg.CanBid)
	assert.Equal(t, gate.ActionNone, resp.Msg.Action)
}

func TestService_SubmitBid(t *testing.T) {
	client, h := newTestServer(t)
	ctx := context.Background()

	bidID := uuid.New()
	h.store.EXPECT().InsertBid(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, nb models.NewBid) (*models.Bid, error) {
			return &models.Bid{ID: bidID, Room: nb.Room, Bidder: nb.Bidder, Amount: nb.Amount, InsertedAt: nb.InsertedAt}, nil
		})

	resp, err := client.SubmitBid(ctx, withUser(&roomapi.SubmitBidRequest{Amount: "12"}, "u-alice"))
	require.NoError(t, err)
	assert.Equal(t, bidID, resp.Msg.Bid.ID)
	assert.Equal(t, alice.Identity, resp.Msg.Bid.Bidder)
	assert.True(t, resp.Msg.MinNextBid.Equal(dec(13)))
}

func TestService_SubmitBidErrors(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     string
		amount     string
		wantCode   connect.Code
		wantReason string
		wantAction gate.Action
	}{
		{"anonymous", "", "50", connect.CodeUnauthenticated, "not_authenticated", gate.ActionPromptLogin},
		{"anonymous with garbage amount", "", "abc", connect.CodeUnauthenticated, "not_authenticated", gate.ActionPromptLogin},
		{"garbage amount", "u-alice", "abc", connect.CodeInvalidArgument, "invalid_amount", gate.ActionNone},
		{"below minimum", "u-alice", "10", connect.CodeInvalidArgument, "below_minimum", gate.ActionNone},
		{"resolver failure", "u-unknown", "50", connect.CodeUnavailable, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SubmitBid(ctx, withUser(&roomapi.SubmitBidRequest{Amount: tt.amount}, tt.userID))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, connect.CodeOf(err))

			var cerr *connect.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantReason, cerr.Meta().Get(roomapi.ReasonHeader))
			assert.Equal(t, string(tt.wantAction), cerr.Meta().Get(roomapi.ActionHeader))
		})
	}
}

func TestService_BelowMinimumCarriesMinimum(t *testing.T) {
	client, _ := newTestServer(t)

	_, err := client.SubmitBid(context.Background(), withUser(&roomapi.SubmitBidRequest{Amount: "10.5"}, "u-alice"))
	var cerr *connect.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "11", cerr.Meta().Get(roomapi.MinAllowedHeader))
}

func TestService_Lifecycle(t *testing.T) {
	client, h := newTestServer(t)
	ctx := context.Background()

	_, err := client.PauseAuction(ctx, withUser(&roomapi.LifecycleRequest{}, "u-alice"))
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	h.store.EXPECT().UpdateRoomStatus(gomock.Any(), models.DefaultRoomName, models.RoomStatusPaused, nil).Return(nil)
	resp, err := client.PauseAuction(ctx, withUser(&roomapi.LifecycleRequest{}, "u-admin"))
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusPaused, resp.Msg.Status)

	h.store.EXPECT().UpdateRoomStatus(gomock.Any(), models.DefaultRoomName, models.RoomStatusEnded, gomock.Any()).
		Return(Connectivity("update room status", errors.New("timeout")))
	_, err = client.CloseAuction(ctx, withUser(&roomapi.LifecycleRequest{}, "u-admin"))
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}
