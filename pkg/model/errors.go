package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind discriminates the failure taxonomy. Callers branch on kinds,
// never on error strings.
type ErrorKind string

const (
	ErrKindUnsupported            ErrorKind = "unsupported"
	ErrKindNotFound               ErrorKind = "not_found"
	ErrKindRateLimitExceeded      ErrorKind = "rate_limit_exceeded"
	ErrKindQuotaExceeded          ErrorKind = "quota_exceeded"
	ErrKindTemporarilyBlacklisted ErrorKind = "temporarily_blacklisted"
	ErrKindStrictSymbolsRejected  ErrorKind = "strict_symbols_rejected"
	ErrKindProviderTimeout        ErrorKind = "provider_timeout"
	ErrKindRequestTimeout         ErrorKind = "request_timeout"
	ErrKindAllProvidersTimedOut   ErrorKind = "all_providers_timed_out"
	ErrKindAllProvidersFailed     ErrorKind = "all_providers_failed"
	ErrKindConnector              ErrorKind = "connector"
	ErrKindCurrencyConflict       ErrorKind = "currency_conflict"
)

// Error is the structured failure type used across the router,
// middleware and streaming coordinator.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Capability Capability
	Instrument *Instrument

	// RetryAfter is the provider-reported wait for rate limits, when known.
	RetryAfter *time.Duration

	// Quota state at denial time. Remaining > 0 means the window still has
	// budget and only the current pacing slice is exhausted.
	Remaining int
	ResetIn   time.Duration

	// Symbols rejected by a strict routing rule.
	Symbols []string

	// Currency conflict details. Culprit is the dissenting provider.
	Expected string
	Actual   string

	// Causes holds the per-provider errors behind an aggregate failure.
	Causes []error

	// Err is the wrapped connector failure.
	Err error

	msg string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrKindUnsupported:
		if e.Provider != "" {
			return fmt.Sprintf("provider %s does not support %s", e.Provider, e.Capability)
		}
		return fmt.Sprintf("no provider supports %s", e.Capability)
	case ErrKindNotFound:
		if e.Instrument != nil {
			return fmt.Sprintf("instrument %s not found", e.Instrument)
		}
		return "instrument not found"
	case ErrKindRateLimitExceeded:
		if e.RetryAfter != nil {
			return fmt.Sprintf("provider %s rate limited, retry after %s", e.Provider, *e.RetryAfter)
		}
		return fmt.Sprintf("provider %s rate limited", e.Provider)
	case ErrKindQuotaExceeded:
		return fmt.Sprintf("provider %s quota exhausted (remaining %d, resets in %s)", e.Provider, e.Remaining, e.ResetIn)
	case ErrKindTemporarilyBlacklisted:
		return fmt.Sprintf("provider %s temporarily blacklisted, resets in %s", e.Provider, e.ResetIn)
	case ErrKindStrictSymbolsRejected:
		return fmt.Sprintf("symbols rejected by strict routing rules: %s", strings.Join(e.Symbols, ", "))
	case ErrKindProviderTimeout:
		return fmt.Sprintf("provider %s timed out", e.Provider)
	case ErrKindRequestTimeout:
		return "request deadline exceeded"
	case ErrKindAllProvidersTimedOut:
		return "all providers timed out"
	case ErrKindAllProvidersFailed:
		return fmt.Sprintf("all providers failed (%d errors)", len(e.Causes))
	case ErrKindConnector:
		return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
	case ErrKindCurrencyConflict:
		return fmt.Sprintf("currency conflict: provider %s reported %s, expected %s", e.Provider, e.Actual, e.Expected)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.Err }

// Actionable reports whether retrying another provider could help.
// Unsupported and NotFound are definitive answers, not failures to act on.
func (e *Error) Actionable() bool {
	return e.Kind != ErrKindUnsupported && e.Kind != ErrKindNotFound
}

// Flatten expands aggregate errors into their leaf causes.
func (e *Error) Flatten() []error {
	if e.Kind != ErrKindAllProvidersFailed {
		return []error{e}
	}
	var out []error
	for _, c := range e.Causes {
		var de *Error
		if errors.As(c, &de) {
			out = append(out, de.Flatten()...)
		} else {
			out = append(out, c)
		}
	}
	return out
}

func ErrUnsupported(provider string, cap Capability) *Error {
	return &Error{Kind: ErrKindUnsupported, Provider: provider, Capability: cap}
}

func ErrNotFound(inst Instrument) *Error {
	return &Error{Kind: ErrKindNotFound, Instrument: &inst}
}

func ErrRateLimited(provider string, retryAfter *time.Duration) *Error {
	return &Error{Kind: ErrKindRateLimitExceeded, Provider: provider, RetryAfter: retryAfter}
}

func ErrQuotaExceeded(provider string, remaining int, resetIn time.Duration) *Error {
	return &Error{Kind: ErrKindQuotaExceeded, Provider: provider, Remaining: remaining, ResetIn: resetIn}
}

func ErrBlacklisted(provider string, resetIn time.Duration) *Error {
	return &Error{Kind: ErrKindTemporarilyBlacklisted, Provider: provider, ResetIn: resetIn}
}

func ErrStrictSymbolsRejected(symbols []string) *Error {
	return &Error{Kind: ErrKindStrictSymbolsRejected, Symbols: symbols}
}

func ErrProviderTimeout(provider string) *Error {
	return &Error{Kind: ErrKindProviderTimeout, Provider: provider}
}

func ErrRequestTimeout() *Error {
	return &Error{Kind: ErrKindRequestTimeout}
}

func ErrAllProvidersTimedOut() *Error {
	return &Error{Kind: ErrKindAllProvidersTimedOut}
}

func ErrAllProvidersFailed(causes []error) *Error {
	return &Error{Kind: ErrKindAllProvidersFailed, Causes: causes}
}

func ErrConnector(provider string, err error) *Error {
	return &Error{Kind: ErrKindConnector, Provider: provider, Err: err}
}

func ErrCurrencyConflict(culprit, expected, actual string) *Error {
	return &Error{Kind: ErrKindCurrencyConflict, Provider: culprit, Expected: expected, Actual: actual}
}

// KindOf returns the taxonomy kind of err, unwrapping as needed.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsNotFound(err error) bool    { return IsKind(err, ErrKindNotFound) }
func IsUnsupported(err error) bool { return IsKind(err, ErrKindUnsupported) }

// IsPermanent reports whether the failure will not change on retry with
// the same arguments. Permanent failures are negative-cacheable.
func IsPermanent(err error) bool {
	return IsNotFound(err) || IsUnsupported(err)
}

// Actionable treats unknown error types as actionable.
func Actionable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Actionable()
	}
	return true
}

// Flatten expands nested aggregate errors; non-taxonomy errors pass
// through as single leaves.
func Flatten(err error) []error {
	var e *Error
	if errors.As(err, &e) {
		return e.Flatten()
	}
	return []error{err}
}
