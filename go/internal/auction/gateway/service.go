// Package gateway pushes room state to browsers over websockets.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/rs/zerolog/log"
)

// StateSource is the part of the room app the gateway reads from
type StateSource interface {
	Name() string
	State() room.StateView
	Subscribe() (<-chan room.StateView, func())
}

// Service fans room state changes out to websocket clients
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	source            StateSource
}

func NewService(config ConnectionConfig, source StateSource) *Service {
	cm := NewConnectionManager(config)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, source),
		stateHandler:      NewStateHandler(source),
		source:            source,
	}
}

// Start forwards every state change to the connected clients until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("room", s.source.Name()).Msg("starting room gateway")

	go s.connectionManager.Start(ctx)

	views, unsubscribe := s.source.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room gateway shutting down")
			return nil
		case view, ok := <-views:
			if !ok {
				return nil
			}
			s.connectionManager.Broadcast(view.Room, stateMessage(view, time.Now()))
		}
	}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}
