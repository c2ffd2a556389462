package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/core"
)

type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports whether the store answers a ping.
func Health(db core.DbClient, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			respond.Write(w, http.StatusServiceUnavailable, respond.Envelope{
				Data:  healthStatus{Status: "degraded", Timestamp: time.Now().UTC()},
				Error: "Database unavailable",
			})
			return
		}
		respond.Write(w, http.StatusOK, respond.Envelope{
			Success: true,
			Data:    healthStatus{Status: "ok", Timestamp: time.Now().UTC()},
		})
	}
}
