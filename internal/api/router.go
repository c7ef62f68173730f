package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/api/handler"
	apimw "github.com/notifyhub/salon-notifier/internal/api/middleware"
	"github.com/notifyhub/salon-notifier/internal/repository"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the ops HTTP surface.
func NewRouter(
	renderer handler.Renderer,
	attempts repository.AttemptRepository,
	queues handler.QueueInspector,
	ready handler.ReadinessChecker,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)             // recover panics, return 500
	r.Use(chimw.RealIP)                // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20))  // 1 MB max request body
	r.Use(apimw.CorrelationID(logger)) // X-Correlation-ID inject / echo, request logger
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	hh := handler.NewHealthHandler(ready)
	ph := handler.NewPreviewHandler(renderer, logger)
	dh := handler.NewDeliveryHandler(attempts, logger)
	mh := handler.NewMetricsHandler(queues, logger)

	// --- routes ---
	r.Get("/healthz", hh.Health)
	r.Get("/readyz", hh.Ready)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/previews/{kind}", ph.Preview)

		r.Get("/events/{id}/deliveries", dh.ListByEvent)
		r.Get("/deliveries", dh.List)

		// JSON queue depth snapshot
		r.Get("/queues", mh.GetQueues)
	})

	return r
}
