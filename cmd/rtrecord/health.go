package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/realtime-client/internal/archive"
	"github.com/rickgao/realtime-client/internal/connection"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type statser interface {
	Stats() connection.ManagerStats
}

type recorderStatser interface {
	Stats() archive.RecorderMetrics
}

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

// newHealthHandler reports database reachability, connection state and
// archive counters. The database being down is unhealthy; a connection that
// is not ready is degraded.
func newHealthHandler(db pinger, mgr statser, rec recorderStatser) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := healthResponse{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		s := mgr.Stats()
		health.Components["connection"] = map[string]any{
			"state":              s.State.String(),
			"connection_id":      s.ConnectionID,
			"authenticated":      s.Authenticated,
			"reconnect_attempts": s.ReconnectAttempts,
			"subscriptions":      s.Subscriptions,
			"queued":             s.QueueLen,
			"frames_received":    s.FramesReceived,
			"events_dropped":     s.EventsDropped,
		}
		if !s.State.IsOpen() && health.Status == "healthy" {
			health.Status = "degraded"
		}

		m := rec.Stats()
		health.Components["archive"] = map[string]any{
			"messages": m.Messages,
			"events":   m.Events,
			"inserted": m.Inserts,
			"errors":   m.Errors,
			"lost":     m.Lost,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
