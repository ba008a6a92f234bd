// Package api contains API contract definitions for the ImgWave license server.
// Version v1 represents the current stable API version.
package api

// License API Requests

// ValidateRequest represents a license validation request from a client
// installation. Offline validations are replays of locally cached state that
// clients submit for grace-period accounting.
type ValidateRequest struct {
	Email      string `json:"email" validate:"required,email"`
	LicenseKey string `json:"license_key" validate:"required,min=10"`
	HardwareID string `json:"hardware_id" validate:"required,min=8"`
	DeviceName string `json:"device_name,omitempty"`
	IsOffline  bool   `json:"is_offline,omitempty"`
}

// TransferRequest moves an existing license to a new device.
type TransferRequest struct {
	Email      string `json:"email" validate:"required,email"`
	LicenseKey string `json:"license_key" validate:"required,min=10"`
	HardwareID string `json:"hardware_id" validate:"required,min=8"`
	DeviceName string `json:"device_name,omitempty"`
}

// CreateLicenseRequest issues a paid license directly. Admin only.
type CreateLicenseRequest struct {
	Email        string `json:"email" validate:"required,email"`
	CustomerName string `json:"customer_name,omitempty"`
	ExpiresDays  int    `json:"expires_days" validate:"min=0,max=3650"`
}

// ForgotLicenseRequest looks up the license key registered for an email.
type ForgotLicenseRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// TrialEligibilityRequest asks whether a trial may be started.
type TrialEligibilityRequest struct {
	Email      string `json:"email" validate:"required,email"`
	HardwareID string `json:"hardware_id" validate:"required,min=8"`
}

// TrialCreateRequest starts a 24-hour trial bound to the requesting device.
type TrialCreateRequest struct {
	Email      string `json:"email" validate:"required,email"`
	HardwareID string `json:"hardware_id" validate:"required,min=8"`
	DeviceName string `json:"device_name,omitempty"`
}
