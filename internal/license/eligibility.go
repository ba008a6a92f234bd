package license

import "strings"

// Eligibility is the outcome of a trial abuse check.
type Eligibility struct {
	Eligible bool
	// Reason is set when Eligible is false.
	Reason  Code
	Message string
}

// EligibilityChecker decides whether an (email, hardware_id) pair may receive
// a new trial. One trial per email and one per device, ever: expired or
// deactivated trials still count against the pair.
type EligibilityChecker struct{}

// NewEligibilityChecker returns a trial eligibility checker.
func NewEligibilityChecker() *EligibilityChecker { return &EligibilityChecker{} }

// Check scans the full record set. Check order is part of the contract: the
// email check runs first, so when both match the reported reason is the email
// one. An O(n) scan is fine here; trial creation is nowhere near a hot path.
func (c *EligibilityChecker) Check(records map[string]*Record, email, hardwareID string) Eligibility {
	email = strings.TrimSpace(email)

	for _, rec := range records {
		if rec.IsTrial() && rec.EmailMatches(email) {
			return ineligible(CodeTrialAlreadyUsedEmail)
		}
	}
	for _, rec := range records {
		if rec.IsTrial() && hardwareID != "" && rec.HardwareID == hardwareID {
			return ineligible(CodeTrialAlreadyUsedHardware)
		}
	}
	// A holder of an active paid license has nothing to gain from a trial;
	// point them at their existing key instead.
	for _, rec := range records {
		if !rec.IsTrial() && rec.IsActive && rec.EmailMatches(email) {
			return ineligible(CodeAlreadyHasLicense)
		}
	}
	return Eligibility{Eligible: true, Message: "Eligible for a free trial"}
}

func ineligible(reason Code) Eligibility {
	return Eligibility{Eligible: false, Reason: reason, Message: reason.Message()}
}
