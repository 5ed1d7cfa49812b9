// Package health serves readiness and liveness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
)

// Handler answers /healthz (liveness) and /readyz (readiness, pings the DB).
type Handler struct {
	db *sqlx.DB
}

// NewHandler returns a health handler over the given database. db may be nil,
// in which case readiness only reports the process as up.
func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{db: db}
}

// Live always reports 200 while the process can serve requests.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports 200 when the database answers a ping, 503 otherwise.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
