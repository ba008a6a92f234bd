package license

import "errors"

// Storage-level sentinel errors. These are the only failures this package
// reports as Go errors; everything a user can cause is a result Code.
var (
	// ErrStorage wraps unrecoverable store I/O failures (permissions, disk
	// full). The API boundary must surface it as a 5xx, never as a license
	// rejection: silently treating a storage failure as "invalid license"
	// would lock out paying customers.
	ErrStorage = errors.New("license store failure")

	// ErrAuditLog wraps audit journal append failures after the retry.
	// Best-effort: issuance proceeds, the caller logs a warning.
	ErrAuditLog = errors.New("purchase audit log failure")

	// ErrKeyExhausted is returned when key generation keeps colliding with
	// existing records. Practically unreachable with 32 bits of entropy.
	ErrKeyExhausted = errors.New("license key space exhausted")
)
