package api

import "time"

// License API Responses

// ValidateResponse reports the outcome of a validation attempt. Policy
// failures still return HTTP 200 with Success=false and a stable Code the
// client can branch on.
type ValidateResponse struct {
	Success     bool       `json:"success"`
	Code        string     `json:"code,omitempty"`
	Message     string     `json:"message"`
	Expires     *time.Time `json:"expires,omitempty"`
	IsTrial     bool       `json:"is_trial"`
	BoundDevice string     `json:"bound_device,omitempty"`
}

// TransferResponse reports the outcome of a device transfer.
type TransferResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// CreateLicenseResponse returns the freshly issued key.
type CreateLicenseResponse struct {
	LicenseKey string    `json:"license_key"`
	Email      string    `json:"email"`
	Expires    time.Time `json:"expires"`
}

// ForgotLicenseResponse returns the key registered to an email, if any.
type ForgotLicenseResponse struct {
	Success    bool       `json:"success"`
	Code       string     `json:"code,omitempty"`
	Message    string     `json:"message"`
	LicenseKey string     `json:"license_key,omitempty"`
	IsActive   bool       `json:"is_active,omitempty"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// LicenseInfoResponse is the full admin view of one license record.
type LicenseInfoResponse struct {
	LicenseKey      string     `json:"license_key"`
	Email           string     `json:"email"`
	CustomerName    string     `json:"customer_name,omitempty"`
	Class           string     `json:"class"`
	CreatedDate     time.Time  `json:"created_date"`
	ExpiryDate      time.Time  `json:"expiry_date"`
	IsActive        bool       `json:"is_active"`
	HardwareID      string     `json:"hardware_id,omitempty"`
	DeviceName      string     `json:"device_name,omitempty"`
	LastValidation  *time.Time `json:"last_validation,omitempty"`
	ValidationCount int        `json:"validation_count"`
	RefundDate      *time.Time `json:"refund_date,omitempty"`
	RefundReason    string     `json:"refund_reason,omitempty"`
	PurchaseSource  string     `json:"purchase_source,omitempty"`

	// Purchase is the originating purchase event, when the audit journal
	// has one for this key.
	Purchase *PurchaseEventView `json:"purchase,omitempty"`
}

// PurchaseEventView is the originating purchase event attached to the admin
// license view, summarized from the audit journal.
type PurchaseEventView struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	SaleID      string    `json:"sale_id,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Currency    string    `json:"currency,omitempty"`
}

// RefundStatusResponse reports whether a license was refunded.
type RefundStatusResponse struct {
	LicenseKey   string     `json:"license_key"`
	IsRefunded   bool       `json:"is_refunded"`
	IsActive     bool       `json:"is_active"`
	RefundDate   *time.Time `json:"refund_date,omitempty"`
	RefundReason string     `json:"refund_reason,omitempty"`
}

// OfflineCheckResponse previews whether an offline validation would pass
// right now and how much grace remains.
type OfflineCheckResponse struct {
	CanUseOffline        bool   `json:"can_use_offline"`
	IsTrial              bool   `json:"is_trial"`
	DaysSinceValidation  int    `json:"days_since_last_validation"`
	GracePeriodRemaining int    `json:"grace_period_remaining"`
	Message              string `json:"message"`
}

// TrialEligibilityResponse answers a pre-flight eligibility check. Reason
// carries the refusal code when Eligible is false.
type TrialEligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

// TrialCreateResponse returns the issued trial key.
type TrialCreateResponse struct {
	Success    bool      `json:"success"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message"`
	LicenseKey string    `json:"license_key,omitempty"`
	Expires    time.Time `json:"expires,omitempty"`
}

// TrialStatusResponse reports the remaining life of a trial key.
type TrialStatusResponse struct {
	Success        bool      `json:"success"`
	Code           string    `json:"code,omitempty"`
	Message        string    `json:"message"`
	IsActive       bool      `json:"is_active"`
	Expires        time.Time `json:"expires,omitempty"`
	HoursRemaining float64   `json:"hours_remaining"`
}

// WebhookResponse acknowledges a payment-provider event. Status is the
// provider-facing disposition: "success", "already_processed",
// "refund_processed", or "refund_failed".
type WebhookResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	LicenseKey string `json:"license_key,omitempty"`
}

// StatusResponse is the service health summary.
type StatusResponse struct {
	Status       string    `json:"status"`
	Service      string    `json:"service"`
	Version      string    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	LicenseCount int       `json:"license_count"`
}
