// Package license implements the ImgWave license core: the durable license
// store, the append-only purchase audit log, trial eligibility checking,
// license issuance, the validation state machine, refund processing and
// device transfer.
//
// The package is split along the same lines as the service contract:
//
//   - Store / FileStore: license_key -> Record mapping, atomic persistence
//   - AuditLog / FileAuditLog: one-purchase-event-per-line journal
//   - EligibilityChecker: trial abuse prevention
//   - Issuer: paid and trial license creation
//   - Validator: accept/reject state machine with offline-grace handling
//   - RefundProcessor, TransferService: post-sale lifecycle
//   - Manager: facade serializing all mutations behind one store-wide lock
//
// All decision logic is expressed as pure functions over the in-memory record
// set plus an injected clock; only the Manager touches the lock and the disk.
// Policy outcomes (trial refused, grace expired, wrong device) are result
// values, not errors. Go errors are reserved for storage and I/O failures.
package license
