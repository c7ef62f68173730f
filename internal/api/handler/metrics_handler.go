package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/salon-notifier/internal/api/middleware"
)

// QueueInspector reports ready message counts per broker queue;
// *broker.Topology satisfies it.
type QueueInspector interface {
	QueueDepths() (map[string]int, error)
}

// MetricsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics via promhttp.
type MetricsHandler struct {
	queues QueueInspector
	logger *zap.Logger
}

func NewMetricsHandler(queues QueueInspector, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{queues: queues, logger: logger}
}

// GetQueues handles GET /api/v1/queues
func (h *MetricsHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	depths, err := h.queues.QueueDepths()
	if err != nil {
		apimw.LoggerFrom(r.Context(), h.logger).Warn("queue depth lookup failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}
	total := 0
	for _, n := range depths {
		total += n
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": depths,
		"total":       total,
	})
}
