package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLicense(t *testing.T) {
	issuer := NewIssuer(NewEligibilityChecker())
	records := map[string]*Record{}

	res, err := issuer.CreateLicense(records, "buyer@b.com", "Buyer", 365, nil, testNow)
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Nil(t, res.Refused)
	assert.Nil(t, res.Audit, "no purchase info means no audit event")

	rec := res.Record
	assert.True(t, ValidKeyFormat(rec.LicenseKey))
	assert.Equal(t, ClassPaid, rec.Class)
	assert.True(t, rec.IsActive)
	assert.Empty(t, rec.HardwareID, "paid licenses bind on first validation, not issuance")
	assert.Equal(t, testNow.Add(365*24*time.Hour), rec.ExpiryDate)
}

func TestCreateLicenseWithPurchaseInfo(t *testing.T) {
	issuer := NewIssuer(NewEligibilityChecker())
	records := map[string]*Record{}

	info := &PurchaseInfo{
		Source:           PlatformGumroad,
		SourceLicenseKey: "GUM-ABC",
		SaleID:           "sale-1",
		ProductName:      "ImgWave",
		Tier:             "Yearly",
		Price:            29.99,
		Currency:         "usd",
	}
	res, err := issuer.CreateLicense(records, "buyer@b.com", "", 365, info, testNow)
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, PlatformGumroad, rec.PurchaseSource)
	assert.Equal(t, "sale-1", rec.PurchaseID)
	assert.Equal(t, "GUM-ABC", rec.SourceLicenseKey)

	require.NotNil(t, res.Audit)
	assert.Equal(t, rec.LicenseKey, res.Audit.LicenseKey)
	assert.Equal(t, "sale-1", res.Audit.SaleID)
	assert.NotEmpty(t, res.Audit.EventID)
	assert.False(t, res.Audit.IsRefundEvent())
}

func TestCreateTrial(t *testing.T) {
	issuer := NewIssuer(NewEligibilityChecker())
	records := map[string]*Record{}

	res, err := issuer.CreateTrial(records, "trial@b.com", "hw-1", "Laptop", testNow)
	require.NoError(t, err)
	require.NotNil(t, res.Record)

	rec := res.Record
	assert.Equal(t, ClassTrial, rec.Class)
	assert.True(t, rec.IsTrial())
	assert.Equal(t, "hw-1", rec.HardwareID, "trials bind at issuance")
	assert.Equal(t, "Laptop", rec.DeviceName)
	assert.Equal(t, testNow.Add(TrialDuration), rec.ExpiryDate)

	require.NotNil(t, res.Audit)
	assert.Equal(t, PlatformTrial, res.Audit.Source)
	assert.Zero(t, res.Audit.Price)
}

func TestCreateTrialRefused(t *testing.T) {
	issuer := NewIssuer(NewEligibilityChecker())
	old := trialRecord("IW-222222-BBBB0002", "trial@b.com", "hw-old")
	records := map[string]*Record{old.LicenseKey: old}

	res, err := issuer.CreateTrial(records, "trial@b.com", "hw-new", "", testNow)
	require.NoError(t, err)
	assert.Nil(t, res.Record)
	require.NotNil(t, res.Refused)
	assert.Equal(t, CodeTrialAlreadyUsedEmail, res.Refused.Reason)
}

func TestKeyFormat(t *testing.T) {
	assert.True(t, ValidKeyFormat("IW-123456-ABCDEF01"))
	assert.False(t, ValidKeyFormat(""))
	assert.False(t, ValidKeyFormat("XX-123456-ABCDEF01"))
	assert.False(t, ValidKeyFormat("IW-12345-ABCDEF01"))
	assert.False(t, ValidKeyFormat("IW-123456-ABCDEF0"))
	assert.False(t, ValidKeyFormat("IW-123456-abcdef01"))
}

func TestGeneratedKeysUnique(t *testing.T) {
	records := map[string]*Record{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := newUniqueKey(records, testNow)
		require.NoError(t, err)
		assert.True(t, ValidKeyFormat(key))
		assert.False(t, seen[key])
		seen[key] = true
		records[key] = &Record{LicenseKey: key}
	}
}
