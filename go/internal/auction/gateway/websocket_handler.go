package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/roomapi"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades watchers of a room to a websocket stream of its state
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	source            StateSource
}

func NewWebSocketHandler(cm *ConnectionManager, source StateSource) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		source:            source,
	}
}

// HandleRoomConnection handles GET /ws/room. Watching needs no session; the
// optional room parameter must name the served room.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomName := h.source.Name()
	if q := r.URL.Query().Get("room"); q != "" && q != roomName {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	userID := r.Header.Get(roomapi.UserIDHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		userID = "anonymous"
	}

	initial := stateMessage(h.source.State(), time.Now())
	if err := h.connectionManager.UpgradeConnection(w, r, userID, roomName, initial); err != nil {
		// the upgrader has already replied to the client
		log.Error().
			Err(err).
			Str("room", roomName).
			Str("user_id", userID).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
