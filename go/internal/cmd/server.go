package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/roomapi"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           newHandler(services),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newHandler(services *Services) http.Handler {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			roomapi.ReasonHeader,
			roomapi.ActionHeader,
			roomapi.MinAllowedHeader,
		},
	})

	registerServices(mux, services)
	setupHealthCheck(mux, services)

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register room service
	roomServicePath, roomServiceHandler := roomapi.NewRoomServiceHandler(services.Room)
	mux.Handle(roomServicePath, roomServiceHandler)

	// Websocket state push and polling endpoint
	services.Gateway.RegisterRoutes(mux)
}

type healthResponse struct {
	Status    string `json:"status"`
	Room      string `json:"room"`
	Connected bool   `json:"connected"`
	Database  string `json:"database"`
}

// setupHealthCheck reports 503 while the room feed or the database is down.
func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		view := services.App.State()
		resp := healthResponse{
			Status:    "ok",
			Room:      services.App.Name(),
			Connected: view.Connected,
			Database:  "ok",
		}
		if err := services.backend.ping(ctx); err != nil {
			resp.Database = err.Error()
			resp.Status = "degraded"
		}
		if !view.Connected {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
