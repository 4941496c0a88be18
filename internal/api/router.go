package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/api/handler"
	apimw "github.com/notifyhub/notification-engine/internal/api/middleware"
	"github.com/notifyhub/notification-engine/internal/engine"
	"github.com/notifyhub/notification-engine/internal/manager"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// the ops surface: liveness, Prometheus scrape, and JSON stats.
func NewRouter(
	mgr *manager.Manager,
	eng *engine.Engine,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	sh := handler.NewStatsHandler(mgr, eng)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", sh.GetStats)
		r.Get("/stats/metrics", sh.GetMetrics)
		r.Get("/notifications/{id}/status", sh.GetStatus)
	})

	return r
}
