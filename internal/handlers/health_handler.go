package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/realtime"
)

// Pinger checks a backing dependency. Nil pingers are skipped.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	Hub     *realtime.Hub
	Checks  map[string]Pinger
	started time.Time
}

func NewHealthHandler(hub *realtime.Hub, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{Hub: hub, Checks: checks, started: time.Now()}
}

// GET /api/health
func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.Checks))
	for name, ping := range h.Checks {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]interface{}{
		"status":       status,
		"timestamp":    time.Now(),
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"dependencies": deps,
	}
	if h.Hub != nil {
		body["realtime"] = h.Hub.Stats()
	}
	apperrors.WriteJSON(w, code, body)
}
