// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound = errors.New("not found")

	// Collection errors.
	ErrNoTranscript  = errors.New("no transcript available")
	ErrRunAborted    = errors.New("run aborted")
	ErrEmptyResponse = errors.New("empty completion response")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// ErrorKind is the coarse category of a failure.
type ErrorKind string

// Error kinds.
const (
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindRateLimit ErrorKind = "rate_limit"
	KindAuth      ErrorKind = "auth"
	KindParse     ErrorKind = "parse"
	KindStorage   ErrorKind = "storage"
	KindBrowser   ErrorKind = "browser"
	KindUnknown   ErrorKind = "unknown"
)

// Severity ranks how much a failure matters to the run.
type Severity string

// Severities, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorContext says where a failure happened.
type ErrorContext struct {
	Timestamp time.Time
	Store     string
	Operation string
	ItemID    string
}

// ErrorRecord is the single shape every captured failure is reduced to.
type ErrorRecord struct {
	Context   ErrorContext
	Kind      ErrorKind
	Severity  Severity
	Message   string
	Retryable bool
}

func (r ErrorRecord) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s]", r.Kind, r.Severity)
	if r.Context.Operation != "" {
		fmt.Fprintf(&b, " %s", r.Context.Operation)
	}
	if r.Context.ItemID != "" {
		fmt.Fprintf(&b, " (%s)", r.Context.ItemID)
	}
	fmt.Fprintf(&b, ": %s", r.Message)
	return b.String()
}

type classificationRule struct {
	kind      ErrorKind
	severity  Severity
	keywords  []string
	retryable bool
}

// classificationRules are evaluated in order; the first keyword hit wins.
var classificationRules = []classificationRule{
	{KindTimeout, SeverityMedium, []string{"timeout", "timed out", "deadline exceeded"}, true},
	{KindRateLimit, SeverityMedium, []string{"rate limit", "ratelimit", "too many requests", "status 429", "quota"}, true},
	{KindAuth, SeverityCritical, []string{"unauthorized", "forbidden", "status 401", "status 403", "api key", "authentication", "permission denied"}, false},
	{KindStorage, SeverityMedium, []string{"database is locked", "database table is locked"}, true},
	{KindNetwork, SeverityMedium, []string{"connection refused", "connection reset", "no such host", "broken pipe", "network", "eof", "status 500", "status 502", "status 503", "status 504", "tls handshake"}, true},
	{KindParse, SeverityLow, []string{"json", "unmarshal", "parse", "invalid character", "syntax error", "malformed"}, false},
	{KindStorage, SeverityHigh, []string{"sqlite", "database", "constraint", "sql:", "pgx", "disk"}, false},
	{KindBrowser, SeverityMedium, []string{"browser", "selector", "element not found", "page crashed", "navigation"}, true},
}

// Classify reduces an arbitrary error to an ErrorRecord using the ordered keyword rules.
// Errors that match no rule are unknown and not retryable.
func Classify(err error, ec ErrorContext) ErrorRecord {
	if ec.Timestamp.IsZero() {
		ec.Timestamp = time.Now()
	}
	if err == nil {
		return ErrorRecord{Kind: KindUnknown, Severity: SeverityLow, Context: ec}
	}

	rec := ErrorRecord{
		Kind:     KindUnknown,
		Severity: SeverityMedium,
		Message:  err.Error(),
		Context:  ec,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		rec.Kind, rec.Severity, rec.Retryable = KindTimeout, SeverityMedium, true
		return rec
	}

	var retryErr *RetryableError
	explicit := errors.As(err, &retryErr)

	msg := strings.ToLower(rec.Message)
	for _, rule := range classificationRules {
		if containsAny(msg, rule.keywords) {
			rec.Kind, rec.Severity, rec.Retryable = rule.kind, rule.severity, rule.retryable
			break
		}
	}

	if explicit {
		rec.Retryable = retryErr.Retryable
	}
	return rec
}

// Systemic reports whether the record signals misconfiguration rather than a
// per-item problem.
func (r ErrorRecord) Systemic() bool {
	return r.Kind == KindAuth || (r.Kind == KindUnknown && r.Severity == SeverityCritical)
}

// Critical builds a record for a failure the caller already knows is systemic.
func Critical(err error, ec ErrorContext) ErrorRecord {
	rec := Classify(err, ec)
	rec.Severity = SeverityCritical
	rec.Retryable = false
	return rec
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
