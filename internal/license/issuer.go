package license

import (
	"time"

	"github.com/google/uuid"
)

// Issuer creates new license records with class-specific defaults. It is pure
// over the record map: the Manager owns locking, persistence and the audit
// append that follows a successful issuance.
type Issuer struct {
	checker *EligibilityChecker
}

// NewIssuer returns an issuer using the given eligibility checker for trials.
func NewIssuer(checker *EligibilityChecker) *Issuer {
	return &Issuer{checker: checker}
}

// IssueResult is the outcome of an issuance attempt.
type IssueResult struct {
	Record *Record
	// Audit is the purchase event to append, nil when the purchase carried
	// no platform payload (direct admin issuance without purchase info).
	Audit *PurchaseRecord
	// Refused is set instead of Record when trial eligibility failed.
	Refused *Eligibility
}

// CreateLicense builds a paid license record. The record carries only the
// lean linkage fields (source, purchase id, source key); the full purchase
// detail goes to the audit log via the returned event.
func (i *Issuer) CreateLicense(records map[string]*Record, email, customerName string, expiresDays int, info *PurchaseInfo, now time.Time) (*IssueResult, error) {
	key, err := newUniqueKey(records, now)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		LicenseKey:   key,
		Email:        email,
		CustomerName: customerName,
		Class:        ClassPaid,
		CreatedDate:  now,
		ExpiryDate:   now.Add(time.Duration(expiresDays) * 24 * time.Hour),
		IsActive:     true,
	}

	res := &IssueResult{Record: rec}
	if info != nil {
		rec.PurchaseSource = info.Source
		rec.PurchaseID = info.SaleID
		rec.SourceLicenseKey = info.SourceLicenseKey
		res.Audit = newPurchaseEvent(key, *info, now)
	}
	return res, nil
}

// CreateTrial builds a one-day trial record, immediately bound to the
// requesting device. Eligibility is checked first; a refusal carries the
// checker's reason. Trials get a zero-price audit event so the journal holds
// the complete issuance history, paid and free alike.
func (i *Issuer) CreateTrial(records map[string]*Record, email, hardwareID, deviceName string, now time.Time) (*IssueResult, error) {
	if elig := i.checker.Check(records, email, hardwareID); !elig.Eligible {
		return &IssueResult{Refused: &elig}, nil
	}

	key, err := newUniqueKey(records, now)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		LicenseKey:  key,
		Email:       email,
		Class:       ClassTrial,
		CreatedDate: now,
		ExpiryDate:  now.Add(TrialDuration),
		IsActive:    true,
		HardwareID:  hardwareID,
		DeviceName:  deviceName,
	}

	info := PurchaseInfo{
		Source:       PlatformTrial,
		ProductName:  "ImgWave Trial",
		Tier:         "trial",
		Price:        0,
		Currency:     "usd",
		PurchaseDate: now,
	}
	return &IssueResult{Record: rec, Audit: newPurchaseEvent(key, info, now)}, nil
}

func newPurchaseEvent(licenseKey string, info PurchaseInfo, now time.Time) *PurchaseRecord {
	purchaseDate := info.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = now
	}
	return &PurchaseRecord{
		EventID:          uuid.NewString(),
		Timestamp:        now,
		LicenseKey:       licenseKey,
		Source:           info.Source,
		SourceLicenseKey: info.SourceLicenseKey,
		SaleID:           info.SaleID,
		CustomerID:       info.CustomerID,
		ProductID:        info.ProductID,
		ProductName:      info.ProductName,
		Tier:             info.Tier,
		Price:            info.Price,
		Currency:         info.Currency,
		PurchaseDate:     purchaseDate,
		IsRecurring:      info.IsRecurring,
		Recurrence:       info.Recurrence,
		SubscriptionID:   info.SubscriptionID,
		IsRefunded:       info.IsRefunded,
		IsDisputed:       info.IsDisputed,
		IsTest:           info.IsTest,
	}
}
