package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind room.BackendKind
	}{
		{"check violation", &pq.Error{Code: "23514"}, room.KindConstraintViolation},
		{"foreign key violation", &pq.Error{Code: "23503"}, room.KindConstraintViolation},
		{"numeric overflow", &pq.Error{Code: "22003"}, room.KindConstraintViolation},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), room.KindConstraintViolation},
		{"admin shutdown", &pq.Error{Code: "57P01"}, room.KindConnectivity},
		{"driver error", errors.New("dial tcp: connection refused"), room.KindConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var be *room.BackendError
			require.ErrorAs(t, classify("op", tt.err), &be)
			assert.Equal(t, tt.wantKind, be.Kind)
			assert.Equal(t, "op", be.Op)
		})
	}
}

func TestRoomFromDB(t *testing.T) {
	endsAt := time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)
	row := AuctionRoomRow{
		Name:          models.DefaultRoomName,
		Description:   "main room",
		StartingPrice: decimal.NewFromInt(10),
		MinIncrement:  decimal.RequireFromString("0.1"),
		Status:        "ended",
		EndsAt:        sql.NullTime{Time: endsAt, Valid: true},
		Stream:        pqtype.NullRawMessage{RawMessage: []byte(`{"playback_id":"abc","playback_url":"https://cdn/abc.m3u8"}`), Valid: true},
	}

	rm, err := roomFromDB(row)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusEnded, rm.Status)
	require.NotNil(t, rm.EndsAt)
	assert.Equal(t, endsAt, *rm.EndsAt)
	require.NotNil(t, rm.Stream)
	assert.Equal(t, "abc", rm.Stream.PlaybackID)

	row.Stream = pqtype.NullRawMessage{}
	rm, err = roomFromDB(row)
	require.NoError(t, err)
	assert.Nil(t, rm.Stream)

	row.Stream = pqtype.NullRawMessage{RawMessage: []byte(`{`), Valid: true}
	_, err = roomFromDB(row)
	assert.Error(t, err)
}

func TestStreamToDB(t *testing.T) {
	raw, err := streamToDB(nil)
	require.NoError(t, err)
	assert.False(t, raw.Valid)

	raw, err = streamToDB(&models.StreamInfo{PlaybackID: "abc"})
	require.NoError(t, err)
	assert.True(t, raw.Valid)
	assert.JSONEq(t, `{"playback_id":"abc"}`, string(raw.RawMessage))
}

func TestBidFromDB(t *testing.T) {
	id := uuid.New()
	at := time.Date(2025, 3, 14, 19, 0, 0, 0, time.FixedZone("CET", 3600))
	b := bidFromDB(BidRow{ID: id, Room: "r", Bidder: "alice", Amount: decimal.NewFromInt(12), InsertedAt: at})

	assert.Equal(t, id, b.ID)
	assert.Equal(t, time.UTC, b.InsertedAt.Location())
	assert.True(t, b.InsertedAt.Equal(at))
}
