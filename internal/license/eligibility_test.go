package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEligibilityFreshPair(t *testing.T) {
	c := NewEligibilityChecker()
	records := map[string]*Record{}

	elig := c.Check(records, "new@b.com", "hw-new")
	assert.True(t, elig.Eligible)
}

func TestEligibilityEmailAlreadyUsed(t *testing.T) {
	c := NewEligibilityChecker()
	trial := trialRecord("IW-222222-BBBB0002", "used@b.com", "hw-old")
	trial.IsActive = false // expired trials still count
	records := map[string]*Record{trial.LicenseKey: trial}

	elig := c.Check(records, "used@b.com", "hw-new")
	assert.False(t, elig.Eligible)
	assert.Equal(t, CodeTrialAlreadyUsedEmail, elig.Reason)
}

func TestEligibilityHardwareAlreadyUsed(t *testing.T) {
	c := NewEligibilityChecker()
	trial := trialRecord("IW-222222-BBBB0002", "other@b.com", "hw-shared")
	records := map[string]*Record{trial.LicenseKey: trial}

	elig := c.Check(records, "new@b.com", "hw-shared")
	assert.False(t, elig.Eligible)
	assert.Equal(t, CodeTrialAlreadyUsedHardware, elig.Reason)
}

func TestEligibilityEmailCheckedBeforeHardware(t *testing.T) {
	c := NewEligibilityChecker()
	trial := trialRecord("IW-222222-BBBB0002", "both@b.com", "hw-both")
	records := map[string]*Record{trial.LicenseKey: trial}

	elig := c.Check(records, "both@b.com", "hw-both")
	assert.False(t, elig.Eligible)
	assert.Equal(t, CodeTrialAlreadyUsedEmail, elig.Reason)
}

func TestEligibilityActivePaidLicense(t *testing.T) {
	c := NewEligibilityChecker()
	paid := paidRecord("IW-111111-AAAA0001", "payer@b.com")
	records := map[string]*Record{paid.LicenseKey: paid}

	elig := c.Check(records, "payer@b.com", "hw-new")
	assert.False(t, elig.Eligible)
	assert.Equal(t, CodeAlreadyHasLicense, elig.Reason)
}

func TestEligibilityEmailCaseInsensitive(t *testing.T) {
	c := NewEligibilityChecker()
	trial := trialRecord("IW-222222-BBBB0002", "Used@Example.com", "hw-old")
	records := map[string]*Record{trial.LicenseKey: trial}

	elig := c.Check(records, "used@example.com", "hw-new")
	assert.False(t, elig.Eligible)
}
