package license

import (
	"time"

	"github.com/google/uuid"
)

// RefundOutcome is the result of processing a refund.
type RefundOutcome struct {
	Success bool
	Code    Code
	Message string
	// Audit is the refund event to append, nil when the license was already
	// inactive (the duplicate entry is deliberately suppressed).
	Audit *PurchaseRecord
	// Mutated reports whether the record set changed.
	Mutated bool
}

// RefundProcessor deactivates licenses on platform refund events. Refunds
// are soft: the record stays in the store with is_active=false so the
// eligibility scan and support tooling keep their history.
type RefundProcessor struct{}

// NewRefundProcessor returns a refund processor.
func NewRefundProcessor() *RefundProcessor { return &RefundProcessor{} }

// Process deactivates the license and prepares the refund audit event.
// Idempotent: refunding an already-inactive license succeeds without a
// second audit entry and without disturbing the original refund fields.
func (p *RefundProcessor) Process(records map[string]*Record, licenseKey, reason string, now time.Time) RefundOutcome {
	rec, ok := records[licenseKey]
	if !ok {
		return RefundOutcome{Code: CodeLicenseNotFound, Message: CodeLicenseNotFound.Message()}
	}
	if !rec.IsActive {
		return RefundOutcome{Success: true, Message: "License already deactivated"}
	}

	rec.IsActive = false
	t := now
	rec.RefundDate = &t
	rec.RefundReason = reason

	return RefundOutcome{
		Success: true,
		Message: "License refunded and deactivated",
		Mutated: true,
		Audit: &PurchaseRecord{
			EventID:      uuid.NewString(),
			Timestamp:    now,
			Event:        refundEvent,
			LicenseKey:   licenseKey,
			Source:       rec.PurchaseSource,
			SaleID:       rec.PurchaseID,
			IsRefunded:   true,
			RefundReason: reason,
		},
	}
}

// RefundStatus summarizes whether and why a license was refunded.
type RefundStatus struct {
	LicenseKey   string
	IsActive     bool
	IsRefunded   bool
	RefundDate   *time.Time
	RefundReason string
}

// Status reads the refund state of a record.
func (p *RefundProcessor) Status(rec *Record) RefundStatus {
	return RefundStatus{
		LicenseKey:   rec.LicenseKey,
		IsActive:     rec.IsActive,
		IsRefunded:   rec.RefundDate != nil,
		RefundDate:   rec.RefundDate,
		RefundReason: rec.RefundReason,
	}
}
