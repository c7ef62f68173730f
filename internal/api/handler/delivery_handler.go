package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/salon-notifier/internal/api/middleware"
	"github.com/notifyhub/salon-notifier/internal/domain"
	"github.com/notifyhub/salon-notifier/internal/repository"
)

// DeliveryHandler serves the read-only delivery audit trail.
type DeliveryHandler struct {
	attempts repository.AttemptRepository
	logger   *zap.Logger
}

func NewDeliveryHandler(attempts repository.AttemptRepository, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{attempts: attempts, logger: logger}
}

// ListByEvent handles GET /api/v1/events/{id}/deliveries
//
// An event with no attempts yields an empty list, not a 404: the event may
// still be waiting in the retry queue.
func (h *DeliveryHandler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempts, err := h.attempts.ListByEvent(r.Context(), id)
	if err != nil {
		apimw.LoggerFrom(r.Context(), h.logger).Error("list event deliveries failed",
			zap.String("event_id", id),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	if attempts == nil {
		attempts = []domain.DeliveryAttempt{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"event_id": id,
		"data":     attempts,
	})
}

// List handles GET /api/v1/deliveries
//
// Query: tenant, channel, status, from, to (RFC3339), page (default 1),
// limit (default 20, max 100).
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAttemptFilter(r)
	if err != nil {
		mapError(w, err)
		return
	}
	attempts, total, err := h.attempts.List(r.Context(), filter)
	if err != nil {
		apimw.LoggerFrom(r.Context(), h.logger).Error("list deliveries failed",
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if attempts == nil {
		attempts = []domain.DeliveryAttempt{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  attempts,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

func parseAttemptFilter(r *http.Request) (domain.AttemptFilter, error) {
	q := r.URL.Query()
	filter := domain.AttemptFilter{Page: 1, Limit: 20}

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		filter.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		filter.Limit = l
	}
	if t := q.Get("tenant"); t != "" {
		filter.TenantID = &t
	}
	if s := q.Get("status"); s != "" {
		st := domain.DeliveryStatus(s)
		if !st.IsValid() {
			return filter, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, s)
		}
		filter.Status = &st
	}
	if ch := q.Get("channel"); ch != "" {
		c := domain.Channel(ch)
		if !c.IsValid() {
			return filter, fmt.Errorf("%w: %q", domain.ErrInvalidChannel, ch)
		}
		filter.Channel = &c
	}
	if f := q.Get("from"); f != "" {
		if t, err := time.Parse(time.RFC3339, f); err == nil {
			filter.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	return filter, nil
}
