package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func paidRecord(key, email string) *Record {
	return &Record{
		LicenseKey:  key,
		Email:       email,
		Class:       ClassPaid,
		CreatedDate: testNow.Add(-30 * 24 * time.Hour),
		ExpiryDate:  testNow.Add(335 * 24 * time.Hour),
		IsActive:    true,
	}
}

func trialRecord(key, email, hardwareID string) *Record {
	return &Record{
		LicenseKey:  key,
		Email:       email,
		Class:       ClassTrial,
		CreatedDate: testNow.Add(-time.Hour),
		ExpiryDate:  testNow.Add(23 * time.Hour),
		IsActive:    true,
		HardwareID:  hardwareID,
		DeviceName:  "Trial Device",
	}
}

func TestValidatorUnknownKey(t *testing.T) {
	v := NewValidator()
	records := map[string]*Record{}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: "IW-000000-DEADBEEF",
		HardwareID: "hw-1",
	}, testNow)

	assert.False(t, result.Success)
	assert.Equal(t, CodeInvalidLicense, result.Code)
	assert.False(t, mutated)
}

func TestValidatorDeactivated(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
	rec.IsActive = false
	records := map[string]*Record{rec.LicenseKey: rec}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
	}, testNow)

	assert.False(t, result.Success)
	assert.Equal(t, CodeLicenseDeactivated, result.Code)
	assert.False(t, mutated)
}

func TestValidatorEmailMismatch(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "owner@b.com")
	records := map[string]*Record{rec.LicenseKey: rec}

	result, _ := v.Evaluate(records, ValidateInput{
		Email:      "intruder@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
	}, testNow)

	assert.False(t, result.Success)
	assert.Equal(t, CodeEmailMismatch, result.Code)
}

func TestValidatorEmailCaseInsensitive(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "Owner@Example.COM")
	records := map[string]*Record{rec.LicenseKey: rec}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "  owner@example.com ",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
		DeviceName: "Laptop",
	}, testNow)

	assert.True(t, result.Success)
	assert.True(t, mutated)
}

func TestValidatorFirstUseBindsHardware(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
	records := map[string]*Record{rec.LicenseKey: rec}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
		DeviceName: "Laptop",
	}, testNow)

	require.True(t, result.Success)
	assert.True(t, mutated)
	assert.Equal(t, "hw-1", rec.HardwareID)
	assert.Equal(t, "Laptop", rec.DeviceName)
	assert.Equal(t, 1, rec.ValidationCount)
	require.NotNil(t, rec.LastValidation)
	assert.Equal(t, testNow, *rec.LastValidation)
}

func TestValidatorBoundToOtherDevice(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
	rec.HardwareID = "hw-original"
	rec.DeviceName = "Desktop"
	records := map[string]*Record{rec.LicenseKey: rec}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-other",
	}, testNow)

	assert.False(t, result.Success)
	assert.Equal(t, CodeBoundToOtherDevice, result.Code)
	assert.Equal(t, "Desktop", result.BoundDevice)
	assert.False(t, mutated)
	assert.Equal(t, "hw-original", rec.HardwareID)
}

func TestValidatorSameDeviceRevalidates(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
	rec.HardwareID = "hw-1"
	rec.ValidationCount = 4
	records := map[string]*Record{rec.LicenseKey: rec}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
	}, testNow)

	assert.True(t, result.Success)
	assert.True(t, mutated)
	assert.Equal(t, 5, rec.ValidationCount)
}

func TestValidatorExpired(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
	rec.ExpiryDate = testNow.Add(-time.Minute)
	records := map[string]*Record{rec.LicenseKey: rec}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
	}, testNow)

	assert.False(t, result.Success)
	assert.Equal(t, CodeLicenseExpired, result.Code)
	assert.False(t, mutated)
	assert.Zero(t, rec.ValidationCount)
}

func TestValidatorTrialRequiresOnline(t *testing.T) {
	v := NewValidator()
	rec := trialRecord("IW-222222-BBBB0002", "t@b.com", "hw-1")
	records := map[string]*Record{rec.LicenseKey: rec}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "t@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
		IsOffline:  true,
	}, testNow)

	assert.False(t, result.Success)
	assert.Equal(t, CodeTrialRequiresOnline, result.Code)
	assert.False(t, mutated)
}

func TestValidatorOfflineGrace(t *testing.T) {
	tests := []struct {
		name     string
		lastSeen time.Duration
		wantOK   bool
	}{
		{"one day ago", 24 * time.Hour, true},
		{"just under grace", OfflineGrace - time.Second, true},
		{"exactly at grace boundary", OfflineGrace, true},
		{"one second past grace", OfflineGrace + time.Second, false},
		{"a week ago", 7 * 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
			rec.HardwareID = "hw-1"
			last := testNow.Add(-tt.lastSeen)
			rec.LastValidation = &last
			rec.ValidationCount = 1
			records := map[string]*Record{rec.LicenseKey: rec}

			result, mutated := v.Evaluate(records, ValidateInput{
				Email:      "a@b.com",
				LicenseKey: rec.LicenseKey,
				HardwareID: "hw-1",
				IsOffline:  true,
			}, testNow)

			assert.Equal(t, tt.wantOK, result.Success)
			assert.False(t, mutated, "offline validation must not mutate")
			if !tt.wantOK {
				assert.Equal(t, CodeOfflineGraceExpired, result.Code)
			}
			// last_validation only moves on online success
			assert.Equal(t, last, *rec.LastValidation)
			assert.Equal(t, 1, rec.ValidationCount)
		})
	}
}

func TestValidatorOfflineNeverValidated(t *testing.T) {
	v := NewValidator()
	rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
	records := map[string]*Record{rec.LicenseKey: rec}

	result, _ := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
		IsOffline:  true,
	}, testNow)

	assert.False(t, result.Success)
	assert.Equal(t, CodeOfflineGraceExpired, result.Code)
}

func TestValidatorPaidSuccessSupersedesTrial(t *testing.T) {
	v := NewValidator()
	paid := paidRecord("IW-111111-AAAA0001", "a@b.com")
	trial := trialRecord("IW-222222-BBBB0002", "a@b.com", "hw-1")
	records := map[string]*Record{
		paid.LicenseKey:  paid,
		trial.LicenseKey: trial,
	}

	result, mutated := v.Evaluate(records, ValidateInput{
		Email:      "a@b.com",
		LicenseKey: paid.LicenseKey,
		HardwareID: "hw-1",
	}, testNow)

	require.True(t, result.Success)
	assert.True(t, mutated)
	assert.False(t, trial.IsActive, "active trial for same email should deactivate")
	assert.True(t, paid.IsActive)
}

func TestValidatorResultMetadata(t *testing.T) {
	v := NewValidator()
	rec := trialRecord("IW-222222-BBBB0002", "t@b.com", "hw-1")
	records := map[string]*Record{rec.LicenseKey: rec}

	result, _ := v.Evaluate(records, ValidateInput{
		Email:      "t@b.com",
		LicenseKey: rec.LicenseKey,
		HardwareID: "hw-1",
	}, testNow)

	require.True(t, result.Success)
	assert.True(t, result.IsTrial)
	assert.Equal(t, rec.ExpiryDate, result.Expires)
}

func TestPreviewOffline(t *testing.T) {
	v := NewValidator()

	t.Run("trial never offline", func(t *testing.T) {
		rec := trialRecord("IW-222222-BBBB0002", "t@b.com", "hw-1")
		check := v.PreviewOffline(rec, testNow)
		assert.False(t, check.CanUseOffline)
		assert.True(t, check.IsTrial)
	})

	t.Run("paid within grace", func(t *testing.T) {
		rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
		last := testNow.Add(-48 * time.Hour)
		rec.LastValidation = &last
		check := v.PreviewOffline(rec, testNow)
		assert.True(t, check.CanUseOffline)
		assert.Equal(t, 2, check.DaysSinceValidation)
		assert.Equal(t, 1, check.GraceDaysRemaining)
	})

	t.Run("paid never activated", func(t *testing.T) {
		rec := paidRecord("IW-111111-AAAA0001", "a@b.com")
		check := v.PreviewOffline(rec, testNow)
		assert.False(t, check.CanUseOffline)
	})
}
