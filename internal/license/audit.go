package license

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AuditLog is the append-only journal of purchase and refund events, kept
// separate from the license store: the store stays lean for the validation
// hot path while full financial detail lands here for compliance.
type AuditLog interface {
	// Append writes one event. Failures must not roll back the store
	// mutation that triggered them; implementations retry once and then
	// report ErrAuditLog for the caller to log as a warning.
	Append(rec PurchaseRecord) error

	// Query scans the journal and returns events matching the predicate.
	// Linear and restartable; refund lookups and analytics only, never a
	// hot path.
	Query(match func(PurchaseRecord) bool) ([]PurchaseRecord, error)
}

// FileAuditLog stores one JSON document per line (jsonl). Lines are only ever
// appended; a refund is a new line, not an edit.
type FileAuditLog struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileAuditLog creates a jsonl-backed audit log, ensuring the parent
// directory exists.
func NewFileAuditLog(path string, logger *slog.Logger) (*FileAuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create audit directory: %v", ErrAuditLog, err)
	}
	return &FileAuditLog{
		path:   path,
		logger: logger.With(slog.String("component", "purchase_audit")),
	}, nil
}

// Append implements AuditLog with one retry.
func (l *FileAuditLog) Append(rec PurchaseRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.appendOnce(rec)
	if err == nil {
		return nil
	}
	l.logger.Warn("audit append failed, retrying once",
		slog.String("license_key", rec.LicenseKey),
		slog.String("error", err.Error()))
	if err = l.appendOnce(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	return nil
}

func (l *FileAuditLog) appendOnce(rec PurchaseRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %v", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Query implements AuditLog. A missing journal yields an empty result.
// Unparseable lines are skipped: a torn final line from a crash must not
// poison the history before it.
func (l *FileAuditLog) Query(match func(PurchaseRecord) bool) ([]PurchaseRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open journal: %v", ErrAuditLog, err)
	}
	defer f.Close()

	var out []PurchaseRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec PurchaseRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			l.logger.Warn("skipping unparseable audit line", slog.String("error", err.Error()))
			continue
		}
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("%w: scan journal: %v", ErrAuditLog, err)
	}
	return out, nil
}

// History returns every event for a license key in append order.
func (l *FileAuditLog) History(licenseKey string) ([]PurchaseRecord, error) {
	return l.Query(func(rec PurchaseRecord) bool {
		return rec.LicenseKey == licenseKey
	})
}
