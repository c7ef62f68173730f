package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/salon-notifier/internal/api/middleware"
	"github.com/notifyhub/salon-notifier/internal/domain"
	"github.com/notifyhub/salon-notifier/internal/render"
)

// Renderer is the subset of *render.Renderer the preview endpoint needs.
type Renderer interface {
	Render(kind domain.EventKind, mc domain.MessageContext) (domain.RenderedContent, error)
}

// PreviewRequest optionally overrides the sample tenant's branding.
type PreviewRequest struct {
	Branding *domain.TenantBrandingProfile `json:"branding"`
}

// PreviewHandler renders templates against a built-in sample appointment so
// template authors can check output without publishing events.
type PreviewHandler struct {
	renderer Renderer
	logger   *zap.Logger
}

func NewPreviewHandler(renderer Renderer, logger *zap.Logger) *PreviewHandler {
	return &PreviewHandler{renderer: renderer, logger: logger}
}

// Preview handles POST /api/v1/previews/{kind}
//
// The kind accepts both "appointment.created" and "created". The body is
// optional.
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEventKind(chi.URLParam(r, "kind"))
	if err != nil {
		mapError(w, err)
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	branding := domain.DefaultBranding("preview")
	branding.Name = "Sample Salon"
	if req.Branding != nil {
		branding = req.Branding.WithDefaults()
		if branding.Name == "" {
			branding.Name = "Sample Salon"
		}
	}

	content, err := h.renderer.Render(kind, render.SampleContext(kind, branding))
	if err != nil {
		apimw.LoggerFrom(r.Context(), h.logger).Warn("preview render failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, content)
}
