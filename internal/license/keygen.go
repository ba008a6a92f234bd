package license

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeyPrefix is the internal license key namespace. Internal keys are never
// equal to any platform's own license key; the two namespaces only meet
// through Record.SourceLicenseKey.
const KeyPrefix = "IW"

// generateKey produces a key of the form IW-NNNNNN-XXXXXXXX where NNNNNN is
// the tail of the unix timestamp and XXXXXXXX is 32 bits from crypto/rand.
// The random suffix is what makes keys unguessable; the timestamp part only
// keeps them roughly sortable for support staff.
func generateKey(now time.Time) (string, error) {
	ts := strconv.FormatInt(now.Unix(), 10)
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("license key entropy: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", KeyPrefix, ts, strings.ToUpper(hex.EncodeToString(buf))), nil
}

// newUniqueKey generates a key collision-checked against the current record
// set.
func newUniqueKey(records map[string]*Record, now time.Time) (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		key, err := generateKey(now)
		if err != nil {
			return "", err
		}
		if _, exists := records[key]; !exists {
			return key, nil
		}
	}
	return "", ErrKeyExhausted
}

// ValidKeyFormat reports whether a string looks like an internal license key.
// Transport layers use this to reject garbage before touching the store.
func ValidKeyFormat(key string) bool {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) != 3 || parts[0] != KeyPrefix {
		return false
	}
	if len(parts[1]) != 6 || len(parts[2]) != 8 {
		return false
	}
	for _, ch := range parts[1] {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	for _, ch := range parts[2] {
		if !((ch >= '0' && ch <= '9') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}
