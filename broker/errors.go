package broker

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrorKind classifies broker errors. The kind decides whether an attempt
// falls back to the email loop, is reported to the RP, or aborts generically,
// so every error produced on the authentication path must carry one.
type ErrorKind int

const (
	// KindInternal covers environment faults this core does not recover
	// from. The zero value, so unclassified errors abort generically.
	KindInternal ErrorKind = iota
	// KindInput is malformed or forbidden client data. Always reported,
	// never retried.
	KindInput
	// KindRateLimited is a terminal throttle rejection. Reported, no
	// fallback.
	KindRateLimited
	// KindProvider means a provider or discovery step failed or timed out.
	// Triggers the email-loop fallback.
	KindProvider
	// KindProviderCancelled means discovery succeeded but yielded nothing
	// usable. Also triggers the fallback; kept distinct for diagnostics.
	KindProviderCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindRateLimited:
		return "rate_limited"
	case KindProvider:
		return "provider"
	case KindProviderCancelled:
		return "provider_cancelled"
	default:
		return "internal"
	}
}

// Error is a classified broker error.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// InputErrorf creates a KindInput error.
func InputErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

// ProviderErrorf creates a KindProvider error.
func ProviderErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindProvider, Message: fmt.Sprintf(format, args...)}
}

// ProviderError wraps cause as a KindProvider error.
func ProviderError(message string, cause error) *Error {
	return &Error{Kind: KindProvider, Message: message, Cause: cause}
}

// InternalError wraps cause as a KindInternal error.
func InternalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// ErrRateLimited is the terminal throttle rejection.
var ErrRateLimited = &Error{Kind: KindRateLimited, Message: "too many requests for this address"}

// ErrProviderCancelled means discovery produced no usable provider.
var ErrProviderCancelled = &Error{Kind: KindProviderCancelled, Message: "discovery yielded no usable provider"}

// KindOf returns the classification of err, KindInternal for anything that
// does not carry one.
func KindOf(err error) ErrorKind {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Kind
	}
	return KindInternal
}

// logError emits the single diagnostic record for an error on the
// authentication path. Provider-class failures are expected operational
// noise; anything internal is a real fault.
func logError(err error) {
	switch KindOf(err) {
	case KindInput, KindRateLimited:
		log.Debug().Str("kind", KindOf(err).String()).Msg(err.Error())
	case KindProvider, KindProviderCancelled:
		log.Warn().Str("kind", KindOf(err).String()).Msg(err.Error())
	default:
		log.Error().Str("kind", KindOf(err).String()).Msg(err.Error())
	}
}
