package services

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgwaved/internal/license"
)

var webhookTestNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newWebhookFixture(t *testing.T) (WebhookService, *license.Manager, *WebhookJournal) {
	t.Helper()
	dir := t.TempDir()

	store, err := license.NewFileStore(filepath.Join(dir, "licenses.json"), testLogger())
	require.NoError(t, err)
	audit, err := license.NewFileAuditLog(filepath.Join(dir, "purchases.jsonl"), testLogger())
	require.NoError(t, err)
	manager, err := license.NewManager(store, audit, testLogger(),
		license.WithClock(func() time.Time { return webhookTestNow }))
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	journal, err := NewWebhookJournal(filepath.Join(dir, "webhook_logs.jsonl"))
	require.NoError(t, err)

	return NewWebhookService(manager, journal, testLogger()), manager, journal
}

func gumroadSale() GumroadEvent {
	return GumroadEvent{
		Email:       "buyer@example.com",
		Permalink:   "imgwave",
		ProductID:   "prod-1",
		ProductName: "ImgWave Pro",
		LicenseKey:  "GUM-ABCDEF",
		SaleID:      "sale-100",
		PurchaserID: "cust-5",
		Tier:        "Yearly",
		Price:       29.99,
		Currency:    "usd",
	}
}

func TestProcessGumroadSale(t *testing.T) {
	ctx := context.Background()
	svc, manager, _ := newWebhookFixture(t)

	resp, err := svc.ProcessGumroad(ctx, gumroadSale())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "success", resp.Status)
	require.NotEmpty(t, resp.LicenseKey)

	rec := manager.Get(ctx, resp.LicenseKey)
	require.NotNil(t, rec)
	assert.Equal(t, "buyer@example.com", rec.Email)
	assert.False(t, rec.IsTrial())
	assert.Equal(t, license.PlatformGumroad, rec.PurchaseSource)
	assert.Equal(t, "sale-100", rec.PurchaseID)
	assert.Equal(t, "GUM-ABCDEF", rec.SourceLicenseKey)
	// Yearly tier: 365 days
	assert.Equal(t, webhookTestNow.AddDate(0, 0, 365).Unix(), rec.ExpiryDate.Unix())
}

func TestProcessGumroadDuplicateSale(t *testing.T) {
	ctx := context.Background()
	svc, manager, _ := newWebhookFixture(t)

	first, err := svc.ProcessGumroad(ctx, gumroadSale())
	require.NoError(t, err)

	second, err := svc.ProcessGumroad(ctx, gumroadSale())
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, "already_processed", second.Status)
	assert.Equal(t, first.LicenseKey, second.LicenseKey, "retry acknowledges the existing license")
	assert.Equal(t, 1, manager.Count())
}

func TestProcessGumroadRefund(t *testing.T) {
	ctx := context.Background()
	svc, manager, _ := newWebhookFixture(t)

	created, err := svc.ProcessGumroad(ctx, gumroadSale())
	require.NoError(t, err)

	refund := gumroadSale()
	refund.Refunded = true
	resp, err := svc.ProcessGumroad(ctx, refund)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "refund_processed", resp.Status)
	assert.Equal(t, created.LicenseKey, resp.LicenseKey)

	rec := manager.Get(ctx, created.LicenseKey)
	assert.False(t, rec.IsActive)
	assert.Equal(t, "gumroad_refund", rec.RefundReason)
}

func TestProcessGumroadRefundUnknownKey(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newWebhookFixture(t)

	refund := gumroadSale()
	refund.Refunded = true
	resp, err := svc.ProcessGumroad(ctx, refund)
	require.ErrorIs(t, err, ErrLicenseNotFound)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "refund_failed", resp.Status)
}

func TestDurationFor(t *testing.T) {
	tests := []struct {
		tier      string
		permalink string
		want      int
	}{
		{"Yearly", "", 365},
		{"Monthly", "", 30},
		{"Lifetime", "", 36500},
		{"3-Month", "", 90},
		{"6-Month", "", 180},
		{"Pricing", "", 30},
		{"", "imgwave", 30},
		{"", "daily_sub", 1},
		{"", "lifetime_deal", 36500},
		{"Yearly", "daily_sub", 365}, // tier wins
		{"", "", defaultDurationDays},
		{"Unknown Tier", "unknown_product", defaultDurationDays},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, durationFor(tt.tier, tt.permalink),
			"tier=%q permalink=%q", tt.tier, tt.permalink)
	}
}

func TestNormalizeGumroad(t *testing.T) {
	event := gumroadSale()
	event.SaleTimestamp = "2026-03-01T08:30:00Z"
	event.Recurrence = "monthly"

	info := normalizeGumroad(event, webhookTestNow)
	assert.Equal(t, license.PlatformGumroad, info.Source)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), info.PurchaseDate)
	assert.True(t, info.IsRecurring)
	assert.Equal(t, "Yearly", info.Tier)

	// Defaults when fields are empty
	bare := GumroadEvent{Email: "x@y.com", SaleID: "s"}
	info = normalizeGumroad(bare, webhookTestNow)
	assert.Equal(t, "Lifetime", info.Tier)
	assert.Equal(t, "usd", info.Currency)
	assert.Equal(t, webhookTestNow, info.PurchaseDate)
	assert.False(t, info.IsRecurring)

	// Unparseable timestamp falls back to now
	bad := gumroadSale()
	bad.SaleTimestamp = "yesterday"
	info = normalizeGumroad(bad, webhookTestNow)
	assert.Equal(t, webhookTestNow, info.PurchaseDate)
}

func TestParseGumroadForm(t *testing.T) {
	form := url.Values{}
	form.Set("email", "buyer@example.com")
	form.Set("permalink", "imgwave")
	form.Set("license_key", "GUM-1")
	form.Set("sale_id", "sale-1")
	form.Set("variants[Tier]", "Monthly")
	form.Set("price", "9.99")
	form.Set("refunded", "true")
	form.Set("test", "false")

	event := ParseGumroadForm(form)
	assert.Equal(t, "buyer@example.com", event.Email)
	assert.Equal(t, "Monthly", event.Tier)
	assert.Equal(t, 9.99, event.Price)
	assert.True(t, event.Refunded)
	assert.False(t, event.Test)
	assert.False(t, event.Disputed)
}

func TestProcessMSStorePurchaseAndRefund(t *testing.T) {
	ctx := context.Background()
	svc, manager, _ := newWebhookFixture(t)

	purchase := MSStoreEvent{
		EventType:     "purchase",
		Email:         "buyer@example.com",
		TransactionID: "tx-1",
		ProductID:     "9NBLGGH4",
		SKU:           "imgwave-pro",
		Price:         19.99,
		Currency:      "usd",
	}
	resp, err := svc.ProcessMSStore(ctx, purchase)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	rec := manager.Get(ctx, resp.LicenseKey)
	require.NotNil(t, rec)
	assert.Equal(t, license.PlatformMSStore, rec.PurchaseSource)
	// duration_days omitted: default applies
	assert.Equal(t, webhookTestNow.AddDate(0, 0, defaultDurationDays).Unix(), rec.ExpiryDate.Unix())

	// Duplicate purchase acknowledged
	dup, err := svc.ProcessMSStore(ctx, purchase)
	require.NoError(t, err)
	assert.Equal(t, resp.LicenseKey, dup.LicenseKey)
	assert.Equal(t, 1, manager.Count())

	// Refund via transaction id
	refund := MSStoreEvent{EventType: "refund", TransactionID: "tx-1"}
	rresp, err := svc.ProcessMSStore(ctx, refund)
	require.NoError(t, err)
	assert.True(t, rresp.Success)
	assert.False(t, manager.Get(ctx, resp.LicenseKey).IsActive)
}

func TestProcessMSStoreUnknownEventType(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newWebhookFixture(t)

	_, err := svc.ProcessMSStore(ctx, MSStoreEvent{EventType: "subscription_renewed"})
	assert.Error(t, err)
}

func TestWebhookJournalAppendAndTail(t *testing.T) {
	journal, err := NewWebhookJournal(filepath.Join(t.TempDir(), "nested", "webhook_logs.jsonl"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, journal.Append("gumroad", "success",
			map[string]string{"sale_id": "s"}, map[string]bool{"success": true}))
	}

	entries, err := journal.Tail(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	all, err := journal.Tail(100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Contains(t, string(all[0]), `"provider":"gumroad"`)
}

func TestWebhookJournalTailMissingFile(t *testing.T) {
	journal, err := NewWebhookJournal(filepath.Join(t.TempDir(), "webhook_logs.jsonl"))
	require.NoError(t, err)

	entries, err := journal.Tail(10)
	require.NoError(t, err)
	assert.Nil(t, entries)
}
