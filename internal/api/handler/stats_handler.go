package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/engine"
	"github.com/notifyhub/notification-engine/internal/manager"
)

// StatsHandler serves human-readable JSON snapshots: live delivery totals,
// windowed metrics, queue depths, and per-notification status. Raw
// Prometheus metrics are a separate scrape endpoint at /metrics.
type StatsHandler struct {
	mgr *manager.Manager
	eng *engine.Engine
}

func NewStatsHandler(mgr *manager.Manager, eng *engine.Engine) *StatsHandler {
	return &StatsHandler{mgr: mgr, eng: eng}
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	submissions, retries := h.eng.Depths()
	respondJSON(w, http.StatusOK, map[string]any{
		"stats": h.mgr.Stats(),
		"queue_depth": map[string]int{
			"submissions": submissions,
			"retries":     retries,
		},
	})
}

// GetMetrics handles GET /api/v1/stats/metrics
//
// Query parameters: start and end (RFC 3339, default last 24h), and
// optional type / channel breakdown filters.
func (h *StatsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		end = t
	}

	var typ *domain.NotificationType
	if v := r.URL.Query().Get("type"); v != "" {
		t := domain.NotificationType(v)
		if !t.IsValid() {
			respondError(w, http.StatusUnprocessableEntity, "invalid notification type")
			return
		}
		typ = &t
	}
	var ch *domain.Channel
	if v := r.URL.Query().Get("channel"); v != "" {
		c := domain.Channel(v)
		if !c.IsValid() {
			respondError(w, http.StatusUnprocessableEntity, "invalid channel")
			return
		}
		ch = &c
	}

	respondJSON(w, http.StatusOK, h.mgr.Metrics(start, end, typ, ch))
}

// GetStatus handles GET /api/v1/notifications/{id}/status
func (h *StatsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sum, err := h.mgr.Status(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}
