package handlers

import (
	"context"
	"log"
	"net/http"
	"time"
)

// Pinger is anything the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Connections int    `json:"connections"`
}

// HealthHandler reports whether the message store is reachable.
func HealthHandler(store Pinger, connections func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok", Store: "ok"}
		if connections != nil {
			resp.Connections = connections()
		}
		if err := store.Ping(ctx); err != nil {
			log.Printf("Health check: store ping failed: %v", err)
			resp.Status = "degraded"
			resp.Store = "unreachable"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		sendJSON(w, resp)
	}
}
