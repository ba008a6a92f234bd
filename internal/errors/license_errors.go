package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"imgwaved/internal/license"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapServiceError maps infrastructure errors from the license service to
// problem details. User-caused outcomes never reach this function; they are
// rendered from their result codes by the handlers. Policy outcomes (grace
// expired, trial refused, wrong device) never appear here either: those
// travel as result values with machine-readable codes.
func MapServiceError(err error, instance, traceID string) render.Renderer {
	switch {
	case errors.Is(err, license.ErrStorage):
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/store-unavailable",
			"License Store Unavailable",
			"The license store could not be read or written. Please try again.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "STORAGE_FAILURE")

	case errors.Is(err, license.ErrAuditLog):
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/audit-unavailable",
			"Audit Log Unavailable",
			"The purchase journal could not be read. Please try again.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "AUDIT_FAILURE")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
