package license

import (
	"time"
)

// ValidateInput is one validation attempt as presented by the client.
type ValidateInput struct {
	Email      string
	LicenseKey string
	HardwareID string
	DeviceName string
	IsOffline  bool
}

// ValidationResult is the outcome of a validation attempt. Every rejection a
// user can cause is a Code here, not an error: the validator is a pure
// decision function over (records, input, now) and its only side effect is
// the mutation flag it hands back to the Manager for persistence.
type ValidationResult struct {
	Success bool
	Code    Code
	Message string
	Expires time.Time
	IsTrial bool
	// BoundDevice names the holding device on bound_to_other_device so a
	// legitimate user can recognize their own machine.
	BoundDevice string
}

// Validator implements the validation state machine.
//
// States at validation time: not found, inactive, email mismatch, expired,
// unbound (first activation), bound to the presented device, bound elsewhere.
// Trials additionally require being online every single time; paid licenses
// get the OfflineGrace window anchored to the last *online* validation.
type Validator struct{}

// NewValidator returns the validation state machine.
func NewValidator() *Validator { return &Validator{} }

// Evaluate runs one validation attempt against the record set. It returns
// the result and whether the record set was mutated (hardware binding,
// counters, trial supersession); the caller must persist before reporting
// success to the client — persist-then-return, never return-then-persist.
//
// Check order is contractual: identity, active flag, email, class gates,
// hardware binding, expiry. A deactivated license never passes regardless of
// expiry; a license bound elsewhere reports the binding even when expired.
func (v *Validator) Evaluate(records map[string]*Record, in ValidateInput, now time.Time) (ValidationResult, bool) {
	rec, ok := records[in.LicenseKey]
	if !ok {
		return failure(CodeInvalidLicense), false
	}
	if !rec.IsActive {
		return failure(CodeLicenseDeactivated), false
	}
	if !rec.EmailMatches(in.Email) {
		return failure(CodeEmailMismatch), false
	}

	isTrial := rec.IsTrial()

	if isTrial && in.IsOffline {
		// Trials have zero offline tolerance.
		return failure(CodeTrialRequiresOnline), false
	}

	if !isTrial && in.IsOffline {
		if rec.LastValidation == nil {
			// Never validated online; first activation must be online.
			return failure(CodeOfflineGraceExpired), false
		}
		if now.Sub(*rec.LastValidation) > OfflineGrace {
			return failure(CodeOfflineGraceExpired), false
		}
		// Inside the grace window: fall through to the binding and expiry
		// checks. Offline success never refreshes last_validation — grace is
		// anchored to the last online validation, not extended by chains of
		// offline approvals.
	}

	bind := false
	switch {
	case rec.HardwareID == "":
		bind = true
	case rec.HardwareID != in.HardwareID:
		res := failure(CodeBoundToOtherDevice)
		res.BoundDevice = rec.DeviceName
		return res, false
	}

	if rec.IsExpired(now) {
		return failure(CodeLicenseExpired), false
	}

	mutated := false
	if !in.IsOffline {
		if bind {
			rec.HardwareID = in.HardwareID
			rec.DeviceName = in.DeviceName
		}
		rec.ValidationCount++
		t := now
		rec.LastValidation = &t
		mutated = true

		if !isTrial {
			mutated = supersedeTrials(records, rec.Email) || mutated
		}
	}

	return ValidationResult{
		Success: true,
		Message: "License validated successfully",
		Expires: rec.ExpiryDate,
		IsTrial: isTrial,
	}, mutated
}

// supersedeTrials deactivates any still-active trial for the email once a
// paid license validates: the trial served its purpose. Records are kept for
// the eligibility scan and the audit trail, only is_active flips.
func supersedeTrials(records map[string]*Record, email string) bool {
	changed := false
	for _, rec := range records {
		if rec.IsTrial() && rec.IsActive && rec.EmailMatches(email) {
			rec.IsActive = false
			changed = true
		}
	}
	return changed
}

func failure(code Code) ValidationResult {
	return ValidationResult{Success: false, Code: code, Message: code.Message()}
}

// OfflineCheck is the grace-period preview the client uses to decide whether
// it may skip the online round-trip.
type OfflineCheck struct {
	CanUseOffline       bool
	IsTrial             bool
	DaysSinceValidation int
	GraceDaysRemaining  int
	Message             string
}

// PreviewOffline computes the offline-grace status of a record without
// mutating anything.
func (v *Validator) PreviewOffline(rec *Record, now time.Time) OfflineCheck {
	if rec.IsTrial() {
		return OfflineCheck{
			IsTrial: true,
			Message: CodeTrialRequiresOnline.Message(),
		}
	}
	if rec.LastValidation == nil {
		return OfflineCheck{Message: "License must be activated online first"}
	}
	since := now.Sub(*rec.LastValidation)
	days := int(since.Hours() / 24)
	remaining := int(OfflineGrace.Hours()/24) - days
	if remaining < 0 {
		remaining = 0
	}
	if since > OfflineGrace {
		return OfflineCheck{
			DaysSinceValidation: days,
			Message:             CodeOfflineGraceExpired.Message(),
		}
	}
	return OfflineCheck{
		CanUseOffline:       true,
		DaysSinceValidation: days,
		GraceDaysRemaining:  remaining,
		Message:             "Offline use available",
	}
}
