package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Store is the durable license_key -> Record mapping. Implementations must
// make Save atomic enough that a crash mid-write cannot leave a record
// half-written. The file-backed default can be swapped for a transactional
// database without changing the HTTP contract.
type Store interface {
	// Load reads the persisted record set. A missing or corrupt file yields
	// an empty map, never an error: losing the store must not brick the
	// service, and the audit log remains the source of truth for recovery.
	Load() (map[string]*Record, error)

	// Save persists the full record set atomically (write-temp-then-rename).
	Save(records map[string]*Record) error

	// Path returns the backing file path, used by the change watcher.
	Path() string
}

// FileStore persists the record map as a single indented JSON document,
// the same layout the offline admin tooling edits.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store, ensuring the parent directory
// exists and initializing an empty document when the file is absent.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %v", ErrStorage, err)
	}
	s := &FileStore{path: path, logger: logger.With(slog.String("component", "license_store"))}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.Save(map[string]*Record{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load() (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Record{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, s.path, err)
	}
	records := map[string]*Record{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		// Corrupt store: start empty rather than refusing every request.
		s.logger.Error("license store corrupt, starting empty",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return map[string]*Record{}, nil
	}
	for key, rec := range records {
		if rec.LicenseKey == "" {
			rec.LicenseKey = key
		}
	}
	return records, nil
}

// Save implements Store. The document is written to a sibling temp file and
// renamed over the target so readers never observe a torn write.
func (s *FileStore) Save(records map[string]*Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal records: %v", ErrStorage, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp file: %v", ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync temp file: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", ErrStorage, s.path, err)
	}
	return nil
}

// FindByEmail returns the most-recently-created active record for the email,
// falling back to the most-recently-created record of any status. Used for
// "forgot license" recovery. Returns nil when nothing matches.
func FindByEmail(records map[string]*Record, email string) *Record {
	var matches []*Record
	for _, rec := range records {
		if rec.EmailMatches(email) {
			matches = append(matches, rec)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedDate.After(matches[j].CreatedDate)
	})
	for _, rec := range matches {
		if rec.IsActive {
			return rec
		}
	}
	return matches[0]
}

// FindByPlatformID resolves a platform transaction id to the record it
// purchased. Used by refund processing when the webhook carries a sale id
// instead of the platform license key.
func FindByPlatformID(records map[string]*Record, platform Platform, transactionID string) *Record {
	if transactionID == "" {
		return nil
	}
	for _, rec := range records {
		if rec.PurchaseSource == platform && rec.PurchaseID == transactionID {
			return rec
		}
	}
	return nil
}

// FindBySourceKey resolves the selling platform's own license key to the
// internal record. Refund webhooks typically carry only the platform's key.
func FindBySourceKey(records map[string]*Record, sourceLicenseKey string) *Record {
	if sourceLicenseKey == "" {
		return nil
	}
	for _, rec := range records {
		if rec.SourceLicenseKey == sourceLicenseKey {
			return rec
		}
	}
	return nil
}
