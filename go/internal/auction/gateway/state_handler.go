package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StateHandler serves the current room state over plain HTTP for clients
// that poll instead of holding a websocket.
type StateHandler struct {
	source StateSource
}

func NewStateHandler(source StateSource) *StateHandler {
	return &StateHandler{source: source}
}

// HandleGetRoomState handles GET /api/room/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(h.source.State()); err != nil {
		log.Error().Err(err).Msg("failed to encode room state response")
	}
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/room/state", h.HandleGetRoomState)
}
