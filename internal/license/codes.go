package license

// Code is a machine-readable outcome code. These strings are the external
// contract consumed by the desktop client; do not rename.
type Code string

const (
	// Not-found / identity.
	CodeInvalidLicense  Code = "invalid_license"
	CodeNoLicenseFound  Code = "no_license_found"
	CodeLicenseNotFound Code = "license_not_found"

	// State conflicts.
	CodeLicenseDeactivated Code = "license_deactivated"
	CodeLicenseExpired     Code = "license_expired"
	CodeEmailMismatch      Code = "email_mismatch"
	CodeBoundToOtherDevice Code = "bound_to_other_device"

	// Policy outcomes. Expected and frequent; never logged as errors.
	CodeTrialRequiresOnline      Code = "trial_requires_online"
	CodeOfflineGraceExpired      Code = "offline_grace_expired"
	CodeTrialAlreadyUsedEmail    Code = "trial_already_used_email"
	CodeTrialAlreadyUsedHardware Code = "trial_already_used_hardware"
	CodeAlreadyHasLicense        Code = "already_has_license"
	CodeTrialNotTransferable     Code = "trial_not_transferable"
)

// Message returns the plain-language message the client shows for a code.
func (c Code) Message() string {
	switch c {
	case CodeInvalidLicense:
		return "License key not recognized"
	case CodeNoLicenseFound:
		return "No license found for this email address"
	case CodeLicenseNotFound:
		return "License not found"
	case CodeLicenseDeactivated:
		return "This license has been deactivated"
	case CodeLicenseExpired:
		return "This license has expired"
	case CodeEmailMismatch:
		return "Email address does not match this license"
	case CodeBoundToOtherDevice:
		return "This license is already in use on another device"
	case CodeTrialRequiresOnline:
		return "Trial licenses require an internet connection for validation"
	case CodeOfflineGraceExpired:
		return "Please connect to the internet to validate your license"
	case CodeTrialAlreadyUsedEmail:
		return "You have already used your free trial"
	case CodeTrialAlreadyUsedHardware:
		return "This device has already been used for a free trial"
	case CodeAlreadyHasLicense:
		return "You already have a full license. Please log in with your license key"
	case CodeTrialNotTransferable:
		return "Trial licenses cannot be transferred to another device"
	default:
		return string(c)
	}
}
