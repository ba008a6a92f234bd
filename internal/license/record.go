package license

import (
	"strings"
	"time"
)

// TrialDuration is the lifetime of a trial license. A record whose
// created->expiry span is at most this long is classified as a trial when the
// explicit class tag is missing (records written by older tooling).
const TrialDuration = 24 * time.Hour

// OfflineGrace is the window after the last successful online validation
// during which a paid license may validate offline. The boundary is
// inclusive: exactly OfflineGrace since the last online validation still
// passes.
const OfflineGrace = 3 * 24 * time.Hour

// Platform identifies where a purchase originated.
type Platform string

const (
	PlatformGumroad Platform = "gumroad"
	PlatformMSStore Platform = "msstore"
	PlatformStripe  Platform = "stripe"
	PlatformDirect  Platform = "direct"
	PlatformTrial   Platform = "trial"
)

// Class is the explicit license class tag stored at creation time.
type Class string

const (
	ClassPaid  Class = "paid"
	ClassTrial Class = "trial"
)

// Record is one issued license. LicenseKey and Email are immutable after
// creation; transfers rebind hardware, never the holder.
type Record struct {
	LicenseKey   string `json:"license_key"`
	Email        string `json:"email"`
	CustomerName string `json:"customer_name,omitempty"`

	Class       Class     `json:"class,omitempty"`
	CreatedDate time.Time `json:"created_date"`
	ExpiryDate  time.Time `json:"expiry_date"`
	IsActive    bool      `json:"is_active"`

	// HardwareID and DeviceName are empty until the first successful
	// validation binds the license to a device. Trials are bound at creation.
	HardwareID string `json:"hardware_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`

	LastValidation  *time.Time `json:"last_validation,omitempty"`
	ValidationCount int        `json:"validation_count"`

	RefundDate   *time.Time `json:"refund_date,omitempty"`
	RefundReason string     `json:"refund_reason,omitempty"`

	// PurchaseSource and PurchaseID are the lean linkage into the audit log;
	// full purchase detail lives there, never here. SourceLicenseKey is the
	// selling platform's own key, the only identifier refund webhooks carry.
	PurchaseSource   Platform `json:"purchase_source,omitempty"`
	PurchaseID       string   `json:"purchase_id,omitempty"`
	SourceLicenseKey string   `json:"source_license_key,omitempty"`
}

// IsTrial reports the license class. The explicit tag wins; legacy records
// without one fall back to the created->expiry duration heuristic.
func (r *Record) IsTrial() bool {
	if r.Class != "" {
		return r.Class == ClassTrial
	}
	return r.ExpiryDate.Sub(r.CreatedDate) <= TrialDuration
}

// EmailMatches compares holder emails case-insensitively.
func (r *Record) EmailMatches(email string) bool {
	return strings.EqualFold(strings.TrimSpace(r.Email), strings.TrimSpace(email))
}

// IsExpired reports whether the license has passed its expiry date.
func (r *Record) IsExpired(now time.Time) bool {
	return now.After(r.ExpiryDate)
}

// Clone returns a deep copy so callers can hand records across the Manager
// lock boundary without aliasing the live map.
func (r *Record) Clone() *Record {
	c := *r
	if r.LastValidation != nil {
		t := *r.LastValidation
		c.LastValidation = &t
	}
	if r.RefundDate != nil {
		t := *r.RefundDate
		c.RefundDate = &t
	}
	return &c
}

// PurchaseInfo is the canonical purchase payload after platform webhook
// normalization. Each transport adapter (Gumroad form post, Microsoft Store
// JSON event) maps its own shape into this one before it reaches the Issuer.
type PurchaseInfo struct {
	Source           Platform  `json:"source"`
	SourceLicenseKey string    `json:"source_license_key,omitempty"`
	SaleID           string    `json:"sale_id,omitempty"`
	CustomerID       string    `json:"customer_id,omitempty"`
	ProductID        string    `json:"product_id,omitempty"`
	ProductName      string    `json:"product_name,omitempty"`
	Tier             string    `json:"tier,omitempty"`
	Price            float64   `json:"price,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	PurchaseDate     time.Time `json:"purchase_date,omitempty"`
	IsRecurring      bool      `json:"is_recurring,omitempty"`
	Recurrence       string    `json:"recurrence,omitempty"`
	SubscriptionID   string    `json:"subscription_id,omitempty"`
	IsRefunded       bool      `json:"is_refunded,omitempty"`
	IsDisputed       bool      `json:"is_disputed,omitempty"`
	IsTest           bool      `json:"is_test,omitempty"`
}

// PurchaseRecord is one financial event in the append-only audit log. Records
// are never mutated after append; a refund is a follow-up event, not an edit.
type PurchaseRecord struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	// Event is empty for purchases and "refund" for refund events.
	Event      string `json:"event,omitempty"`
	LicenseKey string `json:"license_key"`

	Source           Platform  `json:"source,omitempty"`
	SourceLicenseKey string    `json:"source_license_key,omitempty"`
	SaleID           string    `json:"sale_id,omitempty"`
	CustomerID       string    `json:"customer_id,omitempty"`
	ProductID        string    `json:"product_id,omitempty"`
	ProductName      string    `json:"product_name,omitempty"`
	Tier             string    `json:"tier,omitempty"`
	Price            float64   `json:"price,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	PurchaseDate     time.Time `json:"purchase_date,omitempty"`
	IsRecurring      bool      `json:"is_recurring,omitempty"`
	Recurrence       string    `json:"recurrence,omitempty"`
	SubscriptionID   string    `json:"subscription_id,omitempty"`
	IsRefunded       bool      `json:"is_refunded,omitempty"`
	IsDisputed       bool      `json:"is_disputed,omitempty"`
	IsTest           bool      `json:"is_test,omitempty"`

	RefundReason string `json:"refund_reason,omitempty"`
}

const refundEvent = "refund"

// IsRefundEvent reports whether this audit entry records a refund.
func (p *PurchaseRecord) IsRefundEvent() bool {
	return p.Event == refundEvent
}
