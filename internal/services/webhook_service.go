package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"imgwaved/internal/license"
	api "imgwaved/pkg/contracts/api/v1"
)

// productDurations maps store product permalinks to license duration in days.
var productDurations = map[string]int{
	"imgwave":       30,
	"daily_sub":     1,
	"monthly_sub":   30,
	"yearly_sub":    365,
	"lifetime_deal": 36500,
}

// tierDurations maps purchase variant tiers to license duration in days.
// The tier wins over the product permalink when both are present.
var tierDurations = map[string]int{
	"Pricing":  30,
	"Monthly":  30,
	"Yearly":   365,
	"Lifetime": 36500,
	"3-Month":  90,
	"6-Month":  180,
}

const defaultDurationDays = 365

// GumroadEvent is the subset of Gumroad's sale webhook we act on. Gumroad
// posts form-encoded bodies; ParseGumroadForm produces this from url.Values.
type GumroadEvent struct {
	Email          string  `json:"email"`
	Permalink      string  `json:"permalink"`
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	LicenseKey     string  `json:"license_key"`
	SaleID         string  `json:"sale_id"`
	PurchaserID    string  `json:"purchaser_id"`
	Tier           string  `json:"variants[Tier]"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	SaleTimestamp  string  `json:"sale_timestamp"`
	Recurrence     string  `json:"recurrence"`
	SubscriptionID string  `json:"subscription_id"`
	Refunded       bool    `json:"refunded"`
	Disputed       bool    `json:"disputed"`
	Test           bool    `json:"test"`
}

// ParseGumroadForm decodes Gumroad's form-encoded webhook body.
func ParseGumroadForm(form url.Values) GumroadEvent {
	price, _ := strconv.ParseFloat(form.Get("price"), 64)
	return GumroadEvent{
		Email:          form.Get("email"),
		Permalink:      form.Get("permalink"),
		ProductID:      form.Get("product_id"),
		ProductName:    form.Get("product_name"),
		LicenseKey:     form.Get("license_key"),
		SaleID:         form.Get("sale_id"),
		PurchaserID:    form.Get("purchaser_id"),
		Tier:           form.Get("variants[Tier]"),
		Price:          price,
		Currency:       form.Get("currency"),
		SaleTimestamp:  form.Get("sale_timestamp"),
		Recurrence:     form.Get("recurrence"),
		SubscriptionID: form.Get("subscription_id"),
		Refunded:       form.Get("refunded") == "true",
		Disputed:       form.Get("disputed") == "true",
		Test:           form.Get("test") == "true",
	}
}

// MSStoreEvent is a Microsoft Store purchase or refund notification.
type MSStoreEvent struct {
	EventType     string  `json:"event_type"` // "purchase" or "refund"
	Email         string  `json:"email"`
	TransactionID string  `json:"transaction_id"`
	ProductID     string  `json:"product_id"`
	SKU           string  `json:"sku"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	DurationDays  int     `json:"duration_days"`
}

// WebhookService turns payment-provider events into license mutations.
type WebhookService interface {
	ProcessGumroad(ctx context.Context, event GumroadEvent) (*api.WebhookResponse, error)
	ProcessMSStore(ctx context.Context, event MSStoreEvent) (*api.WebhookResponse, error)
}

type webhookService struct {
	manager *license.Manager
	journal *WebhookJournal
	logger  *slog.Logger
	now     func() time.Time
}

// NewWebhookService creates the webhook processor. The journal may be nil,
// which disables raw receipt logging.
func NewWebhookService(manager *license.Manager, journal *WebhookJournal, logger *slog.Logger) WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &webhookService{
		manager: manager,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessGumroad handles one Gumroad sale webhook. Refund notifications
// arrive as the same event shape with refunded=true; those deactivate the
// license resolved through the Gumroad-side key instead of issuing one.
func (s *webhookService) ProcessGumroad(ctx context.Context, event GumroadEvent) (*api.WebhookResponse, error) {
	if event.Refunded {
		return s.gumroadRefund(ctx, event)
	}

	duration := durationFor(event.Tier, event.Permalink)
	info := normalizeGumroad(event, s.now())

	// Duplicate delivery: Gumroad retries webhooks, so a sale we already
	// issued for is acknowledged without a second license.
	if existing := s.manager.ResolvePlatformID(ctx, license.PlatformGumroad, event.SaleID); existing != "" {
		resp := &api.WebhookResponse{Success: true, Status: "already_processed", Message: "Sale already processed", LicenseKey: existing}
		s.record(ctx, "gumroad", "duplicate", event, resp)
		return resp, nil
	}

	rec, err := s.manager.CreateLicense(ctx, event.Email, "", duration, info)
	if err != nil {
		s.record(ctx, "gumroad", "error", event, nil)
		return nil, err
	}

	s.logger.InfoContext(ctx, "license issued from webhook",
		"source", "gumroad",
		"license_key", license.MaskKey(rec.LicenseKey),
		"tier", event.Tier,
		"duration_days", duration,
	)

	resp := &api.WebhookResponse{Success: true, Status: "success", Message: "License created", LicenseKey: rec.LicenseKey}
	s.record(ctx, "gumroad", "success", event, resp)
	return resp, nil
}

func (s *webhookService) gumroadRefund(ctx context.Context, event GumroadEvent) (*api.WebhookResponse, error) {
	key := s.manager.ResolveSourceKey(ctx, event.LicenseKey)
	if key == "" {
		s.logger.WarnContext(ctx, "refund webhook for unknown license",
			"source", "gumroad",
			"source_key", license.MaskKey(event.LicenseKey),
		)
		resp := &api.WebhookResponse{Success: false, Status: "refund_failed", Message: "License not found"}
		s.record(ctx, "gumroad", "refund_failed", event, resp)
		return resp, ErrLicenseNotFound
	}

	outcome, err := s.manager.HandleRefund(ctx, key, "gumroad_refund")
	if err != nil {
		return nil, err
	}

	resp := &api.WebhookResponse{
		Success:    outcome.Success,
		Status:     "refund_processed",
		Message:    "License refunded and deactivated",
		LicenseKey: key,
	}
	s.record(ctx, "gumroad", "refund_success", event, resp)
	return resp, nil
}

// ProcessMSStore handles a Microsoft Store notification.
func (s *webhookService) ProcessMSStore(ctx context.Context, event MSStoreEvent) (*api.WebhookResponse, error) {
	switch event.EventType {
	case "refund":
		key := s.manager.ResolvePlatformID(ctx, license.PlatformMSStore, event.TransactionID)
		if key == "" {
			resp := &api.WebhookResponse{Success: false, Status: "refund_failed", Message: "License not found"}
			s.record(ctx, "msstore", "refund_failed", event, resp)
			return resp, ErrLicenseNotFound
		}
		outcome, err := s.manager.HandleRefund(ctx, key, "msstore_refund")
		if err != nil {
			return nil, err
		}
		resp := &api.WebhookResponse{
			Success:    outcome.Success,
			Status:     "refund_processed",
			Message:    "License refunded and deactivated",
			LicenseKey: key,
		}
		s.record(ctx, "msstore", "refund_success", event, resp)
		return resp, nil

	case "purchase":
		if existing := s.manager.ResolvePlatformID(ctx, license.PlatformMSStore, event.TransactionID); existing != "" {
			resp := &api.WebhookResponse{Success: true, Status: "already_processed", Message: "Sale already processed", LicenseKey: existing}
			s.record(ctx, "msstore", "duplicate", event, resp)
			return resp, nil
		}

		duration := event.DurationDays
		if duration <= 0 {
			duration = defaultDurationDays
		}
		info := &license.PurchaseInfo{
			Source:       license.PlatformMSStore,
			SaleID:       event.TransactionID,
			ProductID:    event.ProductID,
			ProductName:  event.SKU,
			Price:        event.Price,
			Currency:     event.Currency,
			PurchaseDate: s.now().UTC(),
		}
		rec, err := s.manager.CreateLicense(ctx, event.Email, "", duration, info)
		if err != nil {
			s.record(ctx, "msstore", "error", event, nil)
			return nil, err
		}
		resp := &api.WebhookResponse{Success: true, Status: "success", Message: "License created", LicenseKey: rec.LicenseKey}
		s.record(ctx, "msstore", "success", event, resp)
		return resp, nil

	default:
		return nil, fmt.Errorf("unknown msstore event type %q", event.EventType)
	}
}

// durationFor resolves license duration in days. Tier wins over permalink.
func durationFor(tier, permalink string) int {
	if d, ok := tierDurations[tier]; ok {
		return d
	}
	if d, ok := productDurations[permalink]; ok {
		return d
	}
	return defaultDurationDays
}

// normalizeGumroad maps a Gumroad event into the provider-neutral purchase
// shape carried in the audit log.
func normalizeGumroad(event GumroadEvent, now time.Time) *license.PurchaseInfo {
	purchaseDate := now.UTC()
	if event.SaleTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339, event.SaleTimestamp); err == nil {
			purchaseDate = ts
		}
	}

	tier := event.Tier
	if tier == "" {
		tier = "Lifetime"
	}
	currency := event.Currency
	if currency == "" {
		currency = "usd"
	}

	return &license.PurchaseInfo{
		Source:           license.PlatformGumroad,
		SourceLicenseKey: event.LicenseKey,
		SaleID:           event.SaleID,
		CustomerID:       event.PurchaserID,
		ProductID:        event.ProductID,
		ProductName:      event.ProductName,
		Tier:             tier,
		Price:            event.Price,
		Currency:         currency,
		PurchaseDate:     purchaseDate,
		IsRecurring:      event.Recurrence == "monthly" || event.SubscriptionID != "",
		Recurrence:       event.Recurrence,
		SubscriptionID:   event.SubscriptionID,
		IsRefunded:       event.Refunded,
		IsDisputed:       event.Disputed,
		IsTest:           event.Test,
	}
}

// record appends a receipt to the journal, best effort.
func (s *webhookService) record(ctx context.Context, provider, status string, event, response any) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(provider, status, event, response); err != nil {
		s.logger.WarnContext(ctx, "webhook journal append failed", "error", err)
	}
}

// WebhookJournal is an append-only JSONL record of every webhook received,
// kept for dispute resolution and replay debugging.
type WebhookJournal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewWebhookJournal creates the journal, ensuring its directory exists.
func NewWebhookJournal(path string) (*WebhookJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create webhook journal directory: %w", err)
	}
	return &WebhookJournal{path: path, now: time.Now}, nil
}

type journalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Status    string    `json:"status"`
	Event     any       `json:"event"`
	Response  any       `json:"response,omitempty"`
}

// Append writes one receipt line.
func (j *WebhookJournal) Append(provider, status string, event, response any) error {
	line, err := json.Marshal(journalEntry{
		Timestamp: j.now().UTC(),
		Provider:  provider,
		Status:    status,
		Event:     event,
		Response:  response,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook receipt: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open webhook journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append webhook receipt: %w", err)
	}
	return nil
}

// Tail returns up to n most recent receipts.
func (j *WebhookJournal) Tail(n int) ([]json.RawMessage, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook journal: %w", err)
	}

	var entries []json.RawMessage
	start := 0
	for i, b := range data {
		if b == '\n' {
			if line := data[start:i]; len(line) > 0 {
				entries = append(entries, json.RawMessage(append([]byte(nil), line...)))
			}
			start = i + 1
		}
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
