package license

import (
	"fmt"
	"time"
)

// TransferOutcome is the result of a device transfer attempt.
type TransferOutcome struct {
	Success bool
	Code    Code
	Message string
	Mutated bool
}

// TransferService re-binds an active paid license to a new device. No
// cooldown is enforced between transfers; the record's email never changes.
type TransferService struct{}

// NewTransferService returns a transfer service.
func NewTransferService() *TransferService { return &TransferService{} }

// Transfer applies the same identity checks as validation (active, email
// match) and then overwrites the hardware binding unconditionally. Trials
// are bound to their device for life.
func (s *TransferService) Transfer(records map[string]*Record, email, licenseKey, newHardwareID, newDeviceName string, now time.Time) TransferOutcome {
	rec, ok := records[licenseKey]
	if !ok {
		return transferFailure(CodeInvalidLicense)
	}
	if !rec.IsActive {
		return transferFailure(CodeLicenseDeactivated)
	}
	if !rec.EmailMatches(email) {
		return transferFailure(CodeEmailMismatch)
	}
	if rec.IsTrial() {
		return transferFailure(CodeTrialNotTransferable)
	}

	rec.HardwareID = newHardwareID
	rec.DeviceName = newDeviceName
	t := now
	rec.LastValidation = &t

	return TransferOutcome{
		Success: true,
		Message: fmt.Sprintf("License transferred to %s", newDeviceName),
		Mutated: true,
	}
}

func transferFailure(code Code) TransferOutcome {
	return TransferOutcome{Code: code, Message: code.Message()}
}
