package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// AbuseAction names an operation with its own abuse budget.
type AbuseAction string

const (
	ActionTrialCreate   AbuseAction = "trial_create"
	ActionForgotLicense AbuseAction = "forgot_license"
	ActionValidate      AbuseAction = "login_validate"
)

// AbuseBudget bounds how often one identifier may perform an action.
type AbuseBudget struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultAbuseBudgets returns the per-operation budgets. Trial creation is
// the scarcest resource, forgotten-key recovery is email-sending, and
// validation is the hot path that only needs brute-force protection.
func DefaultAbuseBudgets() map[AbuseAction]AbuseBudget {
	return map[AbuseAction]AbuseBudget{
		ActionTrialCreate:   {MaxRequests: 3, Window: 24 * time.Hour, BlockDuration: time.Hour},
		ActionForgotLicense: {MaxRequests: 5, Window: time.Hour, BlockDuration: 30 * time.Minute},
		ActionValidate:      {MaxRequests: 10, Window: 10 * time.Minute, BlockDuration: 15 * time.Minute},
	}
}

// AbuseDecision is the outcome of a budget check.
type AbuseDecision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

type abuseEntry struct {
	requests     []time.Time
	blockedUntil time.Time
	violations   int
}

// AbuseLimiter is an in-memory sliding-window limiter keyed by a hashed
// combination of email, client IP, and hardware ID. Repeat offenders get
// exponentially longer blocks, capped at 8x the base duration.
type AbuseLimiter struct {
	mu      sync.Mutex
	budgets map[AbuseAction]AbuseBudget
	entries map[string]*abuseEntry
	logger  *slog.Logger
	now     func() time.Time
	checks  int
}

// NewAbuseLimiter creates a limiter with the given budgets. A nil budgets
// map falls back to DefaultAbuseBudgets.
func NewAbuseLimiter(budgets map[AbuseAction]AbuseBudget, logger *slog.Logger) *AbuseLimiter {
	if budgets == nil {
		budgets = DefaultAbuseBudgets()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AbuseLimiter{
		budgets: budgets,
		entries: make(map[string]*abuseEntry),
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the limiter clock. Tests only.
func (l *AbuseLimiter) WithClock(now func() time.Time) *AbuseLimiter {
	l.now = now
	return l
}

// Identifier hashes the request factors into a stable, privacy-preserving key.
func Identifier(email, ip, hardwareID string) string {
	var parts []string
	if email != "" {
		parts = append(parts, "email:"+strings.ToLower(email))
	}
	if ip != "" {
		parts = append(parts, "ip:"+ip)
	}
	if hardwareID != "" {
		parts = append(parts, "hw:"+hardwareID)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// Check decides whether the identified caller may perform action now, and
// records the attempt when allowed. Unknown actions are always allowed.
func (l *AbuseLimiter) Check(action AbuseAction, email, ip, hardwareID string) AbuseDecision {
	budget, ok := l.budgets[action]
	if !ok {
		l.logger.Warn("unknown abuse limit action", "action", string(action))
		return AbuseDecision{Allowed: true}
	}

	key := string(action) + ":" + Identifier(email, ip, hardwareID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.checks++
	if l.checks%1000 == 0 {
		l.cleanup(now)
	}

	entry := l.entries[key]
	if entry == nil {
		entry = &abuseEntry{}
		l.entries[key] = entry
	}

	if !entry.blockedUntil.IsZero() {
		if now.Before(entry.blockedUntil) {
			retry := entry.blockedUntil.Sub(now)
			l.logger.Warn("abuse limit block active",
				"action", string(action),
				"retry_after", retry.String(),
			)
			return AbuseDecision{Allowed: false, RetryAfter: retry}
		}
		// Block lapsed. Violations persist so repeat offenders escalate.
		entry.blockedUntil = time.Time{}
	}

	// Drop attempts outside the window
	windowStart := now.Add(-budget.Window)
	kept := entry.requests[:0]
	for _, ts := range entry.requests {
		if !ts.Before(windowStart) {
			kept = append(kept, ts)
		}
	}
	entry.requests = kept

	if len(entry.requests) >= budget.MaxRequests {
		entry.violations++
		// Clamp the exponent, not the product: shifting by the raw violation
		// count overflows int64 past 63 repeats.
		shift := entry.violations - 1
		if shift > 3 {
			shift = 3
		}
		block := budget.BlockDuration * (time.Duration(1) << shift)
		entry.blockedUntil = now.Add(block)

		l.logger.Warn("abuse limit exceeded",
			"action", string(action),
			"count", len(entry.requests),
			"violations", entry.violations,
			"blocked_for", block.String(),
		)
		return AbuseDecision{Allowed: false, RetryAfter: block}
	}

	entry.requests = append(entry.requests, now)
	entry.violations = 0
	return AbuseDecision{
		Allowed:   true,
		Remaining: budget.MaxRequests - len(entry.requests),
	}
}

// Reset clears the state for one identifier across all actions.
// Admin recovery path, not used by the request flow.
func (l *AbuseLimiter) Reset(email, ip, hardwareID string) bool {
	suffix := ":" + Identifier(email, ip, hardwareID)

	l.mu.Lock()
	defer l.mu.Unlock()

	found := false
	for key := range l.entries {
		if strings.HasSuffix(key, suffix) {
			delete(l.entries, key)
			found = true
		}
	}
	return found
}

// cleanup drops entries with no recent attempts and no active block.
// Caller holds the lock.
func (l *AbuseLimiter) cleanup(now time.Time) {
	maxAge := now.Add(-24 * time.Hour)
	for key, entry := range l.entries {
		kept := entry.requests[:0]
		for _, ts := range entry.requests {
			if ts.After(maxAge) {
				kept = append(kept, ts)
			}
		}
		entry.requests = kept
		if len(entry.requests) == 0 && (entry.blockedUntil.IsZero() || now.After(entry.blockedUntil)) {
			delete(l.entries, key)
		}
	}
}
