package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/liveauction/go/internal/auction/roomapi"
	"github.com/mcdev12/liveauction/go/internal/auction/store/sqlite"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_SQLiteEndToEnd(t *testing.T) {
	clearEnv(t)
	cfg := defaultConfig()
	cfg.Store.Driver = DriverSQLite
	cfg.Store.SQLiteDSN = ":memory:"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC))
	services, err := setupServices(ctx, cfg, clock)
	require.NoError(t, err)
	defer services.Close()

	done := make(chan error, 1)
	go func() { done <- services.App.Run(ctx) }()
	require.Eventually(t, func() bool { return services.App.State().Connected }, time.Second, 5*time.Millisecond)

	store, ok := services.backend.store.(*sqlite.Store)
	require.True(t, ok)
	aliceID := uuid.New()
	require.NoError(t, store.PutProfile(ctx, models.Profile{
		ID: aliceID, Email: "alice@example.com",
		FirstName: "Alice", LastName: "Martin", Address: "1 rue de la Paix",
		PostalCode: "75002", City: "Paris", Country: "FR", PhoneNumber: "+33100000000",
	}))

	srv := httptest.NewServer(newHandler(services))
	defer srv.Close()

	// health
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Connected)

	client := roomapi.NewRoomServiceClient(srv.Client(), srv.URL)

	req := connect.NewRequest(&roomapi.SubmitBidRequest{Amount: "12"})
	req.Header().Set(roomapi.UserIDHeader, aliceID.String())
	bid, err := client.SubmitBid(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", bid.Msg.Bid.Bidder)

	require.Eventually(t, func() bool {
		return services.App.State().CurrentAmount.Equal(decimal.NewFromInt(12))
	}, time.Second, 5*time.Millisecond)

	state, err := client.GetState(ctx, connect.NewRequest(&roomapi.GetStateRequest{}))
	require.NoError(t, err)
	require.NotNil(t, state.Msg.State.CurrentLeader)
	assert.Equal(t, "alice@example.com", *state.Msg.State.CurrentLeader)
	assert.False(t, state.Msg.CanBid, "anonymous callers are asked to sign in")

	// participants cannot close the room
	closeReq := connect.NewRequest(&roomapi.LifecycleRequest{})
	closeReq.Header().Set(roomapi.UserIDHeader, aliceID.String())
	_, err = client.CloseAuction(ctx, closeReq)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
