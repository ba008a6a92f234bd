package license

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager is the facade over the license core. It owns the in-memory record
// snapshot and the single store-wide lock that serializes every mutating
// operation; the component types underneath stay pure.
//
// Coarse-grained locking is deliberate: license counts are small and the
// full-file read-modify-write persistence model makes finer granularity
// pointless. Read-only lookups take the read lock and tolerate a snapshot
// that is stale by one in-flight mutation.
type Manager struct {
	store     Store
	audit     AuditLog
	checker   *EligibilityChecker
	issuer    *Issuer
	validator *Validator
	refunds   *RefundProcessor
	transfers *TransferService

	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.RWMutex
	records map[string]*Record

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock injects the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithMetrics attaches OpenTelemetry instruments.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager loads the store snapshot and assembles the core components.
func NewManager(store Store, audit AuditLog, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	records, err := store.Load()
	if err != nil {
		return nil, err
	}

	checker := NewEligibilityChecker()
	m := &Manager{
		store:     store,
		audit:     audit,
		checker:   checker,
		issuer:    NewIssuer(checker),
		validator: NewValidator(),
		refunds:   NewRefundProcessor(),
		transfers: NewTransferService(),
		logger:    logger.With(slog.String("component", "license_manager")),
		now:       time.Now,
		records:   records,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close stops the store watcher if one is running.
func (m *Manager) Close() error {
	close(m.done)
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// Validate runs the validation state machine and persists any binding or
// counter mutation before reporting success. A failed save is returned as an
// error, never as a successful validation: the client must not observe a
// success the disk does not.
func (m *Manager) Validate(ctx context.Context, in ValidateInput) (ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	undo := m.snapshotValidation(in.LicenseKey)
	res, mutated := m.validator.Evaluate(m.records, in, m.now())
	if mutated {
		if err := m.store.Save(m.records); err != nil {
			m.restore(undo)
			return ValidationResult{}, err
		}
	}

	m.metrics.recordValidation(ctx, res)
	if res.Success {
		m.logger.InfoContext(ctx, "license validated",
			slog.String("license_key", MaskKey(in.LicenseKey)),
			slog.Bool("is_trial", res.IsTrial),
			slog.Bool("offline", in.IsOffline))
	} else {
		// Policy and state outcomes are expected traffic, not errors.
		m.logger.InfoContext(ctx, "license validation refused",
			slog.String("license_key", MaskKey(in.LicenseKey)),
			slog.String("code", string(res.Code)))
	}
	return res, nil
}

// CreateLicense issues a paid license and appends the purchase event when
// purchase info is present. The audit append is best-effort with one retry
// inside the log itself; a final failure is logged as a warning and must not
// block issuance of a paid license.
func (m *Manager) CreateLicense(ctx context.Context, email, customerName string, expiresDays int, info *PurchaseInfo) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.issuer.CreateLicense(m.records, email, customerName, expiresDays, info, m.now())
	if err != nil {
		return nil, err
	}
	m.records[res.Record.LicenseKey] = res.Record
	if err := m.store.Save(m.records); err != nil {
		delete(m.records, res.Record.LicenseKey)
		return nil, err
	}

	m.appendAudit(ctx, res.Audit)
	source := PlatformDirect
	if info != nil {
		source = info.Source
	}
	m.metrics.recordIssued(ctx, ClassPaid, source)
	m.logger.InfoContext(ctx, "license created",
		slog.String("license_key", MaskKey(res.Record.LicenseKey)),
		slog.String("source", string(source)),
		slog.Int("expires_days", expiresDays))
	return res.Record.Clone(), nil
}

// CreateTrial issues a one-day, device-bound trial. An eligibility refusal is
// returned as a result, not an error.
func (m *Manager) CreateTrial(ctx context.Context, email, hardwareID, deviceName string) (*Record, *Eligibility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.issuer.CreateTrial(m.records, email, hardwareID, deviceName, m.now())
	if err != nil {
		return nil, nil, err
	}
	if res.Refused != nil {
		m.metrics.recordTrialRejection(ctx, res.Refused.Reason)
		return nil, res.Refused, nil
	}

	m.records[res.Record.LicenseKey] = res.Record
	if err := m.store.Save(m.records); err != nil {
		delete(m.records, res.Record.LicenseKey)
		return nil, nil, err
	}

	m.appendAudit(ctx, res.Audit)
	m.metrics.recordIssued(ctx, ClassTrial, PlatformTrial)
	m.logger.InfoContext(ctx, "trial created",
		slog.String("license_key", MaskKey(res.Record.LicenseKey)),
		slog.String("device", deviceName))
	return res.Record.Clone(), nil, nil
}

// CheckTrialEligibility runs the abuse scan without issuing anything.
func (m *Manager) CheckTrialEligibility(ctx context.Context, email, hardwareID string) Eligibility {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elig := m.checker.Check(m.records, email, hardwareID)
	if !elig.Eligible {
		m.metrics.recordTrialRejection(ctx, elig.Reason)
	}
	return elig
}

// FindByEmail is the "forgot license" lookup. Stale reads are acceptable.
func (m *Manager) FindByEmail(ctx context.Context, email string) *Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec := FindByEmail(m.records, email); rec != nil {
		return rec.Clone()
	}
	return nil
}

// Get returns a copy of one record, nil when absent.
func (m *Manager) Get(ctx context.Context, licenseKey string) *Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.records[licenseKey]; ok {
		return rec.Clone()
	}
	return nil
}

// ResolveSourceKey maps a platform's own license key to the internal one.
func (m *Manager) ResolveSourceKey(ctx context.Context, sourceLicenseKey string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec := FindBySourceKey(m.records, sourceLicenseKey); rec != nil {
		return rec.LicenseKey
	}
	return ""
}

// ResolvePlatformID maps (platform, transaction id) to the internal key.
func (m *Manager) ResolvePlatformID(ctx context.Context, platform Platform, transactionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec := FindByPlatformID(m.records, platform, transactionID); rec != nil {
		return rec.LicenseKey
	}
	return ""
}

// HandleRefund deactivates a license. Idempotent; see RefundProcessor.
func (m *Manager) HandleRefund(ctx context.Context, licenseKey, reason string) (RefundOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var undo *Record
	if rec, ok := m.records[licenseKey]; ok {
		undo = rec.Clone()
	}
	out := m.refunds.Process(m.records, licenseKey, reason, m.now())
	if out.Mutated {
		if err := m.store.Save(m.records); err != nil {
			m.records[licenseKey] = undo
			return RefundOutcome{}, err
		}
		m.appendAudit(ctx, out.Audit)
		m.metrics.recordRefund(ctx)
		m.logger.InfoContext(ctx, "license refunded",
			slog.String("license_key", MaskKey(licenseKey)),
			slog.String("reason", reason))
	}
	return out, nil
}

// Transfer re-binds an active paid license to a new device.
func (m *Manager) Transfer(ctx context.Context, email, licenseKey, newHardwareID, newDeviceName string) (TransferOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var undo *Record
	if rec, ok := m.records[licenseKey]; ok {
		undo = rec.Clone()
	}
	out := m.transfers.Transfer(m.records, email, licenseKey, newHardwareID, newDeviceName, m.now())
	if out.Mutated {
		if err := m.store.Save(m.records); err != nil {
			m.records[licenseKey] = undo
			return TransferOutcome{}, err
		}
		m.logger.InfoContext(ctx, "license transferred",
			slog.String("license_key", MaskKey(licenseKey)),
			slog.String("device", newDeviceName))
	}
	return out, nil
}

// PreviewOffline reports the offline-grace state of a license. The second
// return is false when the key is unknown.
func (m *Manager) PreviewOffline(ctx context.Context, licenseKey string) (OfflineCheck, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[licenseKey]
	if !ok {
		return OfflineCheck{}, false
	}
	return m.validator.PreviewOffline(rec, m.now()), true
}

// RefundStatus reports refund state, second return false when unknown.
func (m *Manager) RefundStatus(ctx context.Context, licenseKey string) (RefundStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[licenseKey]
	if !ok {
		return RefundStatus{}, false
	}
	return m.refunds.Status(rec), true
}

// History returns the audit trail for a license key.
func (m *Manager) History(ctx context.Context, licenseKey string) ([]PurchaseRecord, error) {
	return m.audit.Query(func(rec PurchaseRecord) bool {
		return rec.LicenseKey == licenseKey
	})
}

// Count returns the number of records in the snapshot, for health reporting.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// WatchStore reloads the snapshot when the backing file changes on disk, so
// edits by the offline admin tooling are picked up without a restart. The
// watcher observes the parent directory because the atomic save replaces the
// file inode on every write. Reloads triggered by our own saves re-read what
// was just written and are harmless.
func (m *Manager) WatchStore() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.store.Path())); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	go func() {
		base := filepath.Base(m.store.Path())
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				m.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("store watcher error", slog.String("error", err.Error()))
			case <-m.done:
				return
			}
		}
	}()
	return nil
}

func (m *Manager) reload() {
	records, err := m.store.Load()
	if err != nil {
		m.logger.Warn("store reload failed", slog.String("error", err.Error()))
		return
	}
	m.mu.Lock()
	m.records = records
	m.mu.Unlock()
	m.logger.Debug("store snapshot reloaded", slog.Int("records", len(records)))
}

// snapshotValidation deep-copies every record a validation attempt may
// mutate: the target itself plus, for a paid success, any still-active trial
// on the same email that would be superseded. Caller holds the write lock.
func (m *Manager) snapshotValidation(licenseKey string) map[string]*Record {
	undo := make(map[string]*Record)
	rec, ok := m.records[licenseKey]
	if !ok {
		return undo
	}
	undo[licenseKey] = rec.Clone()
	for key, other := range m.records {
		if other.IsTrial() && other.IsActive && other.EmailMatches(rec.Email) {
			undo[key] = other.Clone()
		}
	}
	return undo
}

// restore puts snapshotted records back after a failed save, keeping the
// in-memory state equal to the persisted one. Without this a retried refund
// or validation would find the mutation already applied, skip the save, and
// acknowledge a change the disk never saw.
func (m *Manager) restore(undo map[string]*Record) {
	for key, rec := range undo {
		m.records[key] = rec
	}
}

// appendAudit writes the event if non-nil, logging instead of failing: the
// journal is best-effort and must never block issuance or refunds.
func (m *Manager) appendAudit(ctx context.Context, rec *PurchaseRecord) {
	if rec == nil || m.audit == nil {
		return
	}
	if err := m.audit.Append(*rec); err != nil {
		m.logger.WarnContext(ctx, "purchase audit append failed",
			slog.String("license_key", MaskKey(rec.LicenseKey)),
			slog.String("error", err.Error()))
	}
}

// MaskKey redacts the random suffix of a license key for logging.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:len(key)-8] + "****"
}
