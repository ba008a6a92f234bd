package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "imgwaved/internal/errors"
	"imgwaved/internal/infrastructure"
	"imgwaved/internal/license"
	"imgwaved/internal/middleware"
	"imgwaved/internal/security"
	"imgwaved/internal/services"
	api "imgwaved/pkg/contracts/api/v1"
)

// LicenseHandler serves the license lifecycle endpoints.
type LicenseHandler struct {
	service  services.LicenseService
	abuse    *middleware.AbuseLimiter
	admin    *security.AdminAuthenticator
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service services.LicenseService, abuse *middleware.AbuseLimiter, admin *security.AdminAuthenticator, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		abuse:    abuse,
		admin:    admin,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the chi router for /api/v1/license.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/validate", h.Validate)
	r.Post("/transfer", h.Transfer)
	r.Post("/forgot", h.Forgot)
	r.Get("/refund-status/{licenseKey}", h.RefundStatus)
	r.Post("/offline-check/{licenseKey}", h.OfflineCheck)

	// Admin surface
	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/create", h.Create)
		r.Get("/info/{licenseKey}", h.Info)
	})

	return r
}

// TrialRoutes returns the chi router for /api/v1/trial.
func (h *LicenseHandler) TrialRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/check-eligibility", h.TrialEligibility)
	r.Post("/create", h.TrialCreate)
	r.Get("/status/{licenseKey}", h.TrialStatus)

	return r
}

// Validate handles POST /api/v1/license/validate.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license_handler.validate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/v1/license/validate"),
		))
	defer span.End()

	var req api.ValidateRequest
	if err := h.decode(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if !h.allow(w, r, middleware.ActionValidate, req.Email, req.HardwareID) {
		return
	}

	resp, err := h.service.Validate(ctx, req)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Bool("license.valid", resp.Success))
	render.JSON(w, r, resp)
}

// Transfer handles POST /api/v1/license/transfer.
func (h *LicenseHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.TransferRequest
	if err := h.decode(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.Transfer(ctx, req)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	if !resp.Success {
		render.Status(r, http.StatusBadRequest)
	}
	render.JSON(w, r, resp)
}

// Create handles POST /api/v1/license/create. Admin only.
func (h *LicenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateLicenseRequest
	if err := h.decode(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.CreateLicense(ctx, req)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license created by admin", slog.String("email", req.Email))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Forgot handles POST /api/v1/license/forgot.
func (h *LicenseHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ForgotLicenseRequest
	if err := h.decode(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if !h.allow(w, r, middleware.ActionForgotLicense, req.Email, "") {
		return
	}

	resp, err := h.service.ForgotLicense(ctx, req.Email)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Info handles GET /api/v1/license/info/{licenseKey}. Admin only.
func (h *LicenseHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	licenseKey, ok := h.keyParam(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Info(ctx, licenseKey)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// RefundStatus handles GET /api/v1/license/refund-status/{licenseKey}.
func (h *LicenseHandler) RefundStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	licenseKey, ok := h.keyParam(w, r)
	if !ok {
		return
	}

	resp, err := h.service.RefundStatus(ctx, licenseKey)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// OfflineCheck handles POST /api/v1/license/offline-check/{licenseKey}.
func (h *LicenseHandler) OfflineCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	licenseKey, ok := h.keyParam(w, r)
	if !ok {
		return
	}

	resp, err := h.service.OfflineCheck(ctx, licenseKey)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// TrialEligibility handles POST /api/v1/trial/check-eligibility.
func (h *LicenseHandler) TrialEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.TrialEligibilityRequest
	if err := h.decode(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.TrialEligibility(ctx, req)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// TrialCreate handles POST /api/v1/trial/create.
func (h *LicenseHandler) TrialCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license_handler.trial_create")
	defer span.End()

	var req api.TrialCreateRequest
	if err := h.decode(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if !h.allow(w, r, middleware.ActionTrialCreate, req.Email, req.HardwareID) {
		return
	}

	resp, err := h.service.TrialCreate(ctx, req)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	if resp.Success {
		render.Status(r, http.StatusCreated)
	} else {
		render.Status(r, http.StatusBadRequest)
	}
	render.JSON(w, r, resp)
}

// TrialStatus handles GET /api/v1/trial/status/{licenseKey}.
func (h *LicenseHandler) TrialStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	licenseKey, ok := h.keyParam(w, r)
	if !ok {
		return
	}

	resp, err := h.service.TrialStatus(ctx, licenseKey)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// keyParam extracts the {licenseKey} URL parameter, rejecting malformed keys
// before they reach the store. Malformed and unknown keys are answered the
// same way so the response does not reveal which shapes the keyspace uses.
func (h *LicenseHandler) keyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	licenseKey := chi.URLParam(r, "licenseKey")
	if !license.ValidKeyFormat(licenseKey) {
		render.Render(w, r, apierrors.ErrLicenseNotFound)
		return "", false
	}
	return licenseKey, true
}

// decode parses and validates a JSON request body.
func (h *LicenseHandler) decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

// allow consults the per-operation abuse budget, writing the 429 itself
// when the caller is over limit.
func (h *LicenseHandler) allow(w http.ResponseWriter, r *http.Request, action middleware.AbuseAction, email, hardwareID string) bool {
	if h.abuse == nil {
		return true
	}
	decision := h.abuse.Check(action, email, r.RemoteAddr, hardwareID)
	if decision.Allowed {
		return true
	}

	retry := int(decision.RetryAfter.Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, map[string]any{
		"error":       "rate_limit_exceeded",
		"retry_after": retry,
		"message":     "Too many requests. Please try again in " + (time.Duration(retry) * time.Second).String() + ".",
	})
	return false
}

// requireAdmin gates the admin routes behind the bcrypt-verified token.
func (h *LicenseHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.admin == nil || !h.admin.VerifyRequest(r) {
			h.logger.WarnContext(r.Context(), "admin authentication failed",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			render.Render(w, r, apierrors.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// renderServiceError maps service errors to HTTP responses.
func (h *LicenseHandler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if errors.Is(err, services.ErrLicenseNotFound) {
		render.Render(w, r, apierrors.ErrLicenseNotFound)
		return
	}

	h.logger.ErrorContext(ctx, "license request failed", "error", err)
	infrastructure.RecordError(ctx, err)
	render.Render(w, r, apierrors.MapServiceError(err, r.URL.Path, infrastructure.GetTraceID(ctx)))
}
