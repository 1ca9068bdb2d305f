// Package pipelineerr defines the error taxonomy shared across the ingestion
// pipeline. Every error raised by VendorClient, JobCoordinator, ValidationEngine,
// and ColumnarWriter is classified into one of these kinds so callers can
// decide retry/propagation policy with errors.Is, without depending on
// package-specific error types.
package pipelineerr

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind classifies an error for retry and propagation decisions.
type Kind string

const (
	// KindConfiguration covers invalid/unsupported config version, out-of-range
	// numeric parameters, and unknown providers.
	KindConfiguration Kind = "configuration_error"
	// KindAuthentication covers absent or vendor-rejected credentials. Not retryable.
	KindAuthentication Kind = "authentication_error"
	// KindRateLimitExceeded is vendor-signalled (HTTP 429). Retryable via the
	// client's normal retry path.
	KindRateLimitExceeded Kind = "rate_limit_exceeded"
	// KindTransientNetwork covers timeouts, 5xx, and JSON parse failures. Retryable.
	KindTransientNetwork Kind = "transient_network_error"
	// KindParse means the vendor returned 2xx with a body that cannot be mapped
	// to canonical rows. Fails the unit, not the job.
	KindParse Kind = "parse_error"
	// KindDomainViolation means a parsed row violates the OHLCVBar construction
	// invariant. Fails the unit's row unless the unit's failure-rate threshold is
	// exceeded, in which case it fails the unit.
	KindDomainViolation Kind = "domain_violation"
	// KindStorage covers file-lock contention beyond a timeout, disk full, and
	// permission denied. Fails the unit.
	KindStorage Kind = "storage_error"
	// KindConcurrencyConflict is an aggregate version mismatch on save; retried
	// once against the latest version before the unit fails.
	KindConcurrencyConflict Kind = "concurrency_conflict"
	// KindFatal covers misuse bugs: a state transition attempted from a terminal
	// state, or an assertion failure in a domain invariant. Aborts the job.
	KindFatal Kind = "fatal_error"
)

// Error is a classified pipeline error wrapping an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, pipelineerr.KindX) by comparing kinds, letting
// callers test classification without type-asserting *Error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// Error lets a bare Kind value itself satisfy the error interface, so
// errors.Is(err, KindRateLimitExceeded) works whether err is a *Error or the
// sentinel Kind directly.
func (k Kind) Error() string { return string(k) }

// New builds a classified error with a plain message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies cause under kind, preserving it for errors.Unwrap/errors.As.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Retryable reports whether errors of this kind are eligible for the
// client's normal retry path.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimitExceeded, KindTransientNetwork:
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind from err if it is, or wraps, a *Error; ok is false
// for unclassified errors.
func KindOf(err error) (kind Kind, ok bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// secretPattern matches key=value style credential material that might leak
// into an error message (API keys, tokens, bearer headers, basic auth).
var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password|authorization)\s*[:=]\s*\S+`)

// Mask redacts substrings that look like embedded credentials from a
// caller-visible error message. Applied to any string derived from vendor
// responses or configuration before it reaches a job result or log line.
func Mask(s string) string {
	return secretPattern.ReplaceAllString(s, "$1=***")
}
