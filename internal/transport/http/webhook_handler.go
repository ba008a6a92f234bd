package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "imgwaved/internal/errors"
	"imgwaved/internal/services"
)

// WebhookHandler receives payment-provider notifications.
type WebhookHandler struct {
	service services.WebhookService
	journal *services.WebhookJournal
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service services.WebhookService, journal *services.WebhookJournal, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		journal: journal,
		logger:  logger.With(slog.String("handler", "webhook")),
	}
}

// Routes returns the chi router for /api/v1/webhooks.
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/gumroad", h.Gumroad)
	r.Post("/msstore", h.MSStore)
	r.Get("/gumroad/debug", h.GumroadDebug)

	return r
}

// Gumroad handles POST /api/v1/webhooks/gumroad. Gumroad posts
// form-encoded bodies; JSON is accepted as a fallback for testing.
func (h *WebhookHandler) Gumroad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var event services.GumroadEvent
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := render.DecodeJSON(r.Body, &event); err != nil {
			render.Render(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			render.Render(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
		event = services.ParseGumroadForm(r.PostForm)
	}

	if event.Email == "" && !event.Refunded {
		render.Render(w, r, apierrors.ErrValidation("email", "email is required"))
		return
	}

	resp, err := h.service.ProcessGumroad(ctx, event)
	if err != nil {
		if errors.Is(err, services.ErrLicenseNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp)
			return
		}
		h.logger.ErrorContext(ctx, "gumroad webhook failed", "error", err)
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}

	render.JSON(w, r, resp)
}

// MSStore handles POST /api/v1/webhooks/msstore.
func (h *WebhookHandler) MSStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var event services.MSStoreEvent
	if err := render.DecodeJSON(r.Body, &event); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if event.EventType == "" {
		render.Render(w, r, apierrors.ErrValidation("event_type", "event_type is required"))
		return
	}

	resp, err := h.service.ProcessMSStore(ctx, event)
	if err != nil {
		if errors.Is(err, services.ErrLicenseNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp)
			return
		}
		h.logger.ErrorContext(ctx, "msstore webhook failed", "error", err)
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}

	render.JSON(w, r, resp)
}

// GumroadDebug handles GET /api/v1/webhooks/gumroad/debug, returning the
// most recent receipts from the journal.
func (h *WebhookHandler) GumroadDebug(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		render.JSON(w, r, map[string]any{"message": "No logs yet"})
		return
	}

	entries, err := h.journal.Tail(20)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read webhook journal", "error", err)
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	if len(entries) == 0 {
		render.JSON(w, r, map[string]any{"message": "No logs yet"})
		return
	}
	render.JSON(w, r, entries)
}
