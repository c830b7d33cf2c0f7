package terminal

import (
	"errors"
	"fmt"
)

// ErrorKind tags every terminal outcome that leaves the service boundary.
type ErrorKind string

const (
	KindValidation             ErrorKind = "validation_error"
	KindReaderTimeout          ErrorKind = "reader_timeout"
	KindReaderTimeoutExhausted ErrorKind = "reader_timeout_exhausted"
	KindReaderOffline          ErrorKind = "reader_offline"
	KindReaderBusy             ErrorKind = "reader_busy"
	KindIntentInvalidState     ErrorKind = "intent_invalid_state"
	KindProviderUnclassified   ErrorKind = "provider_unclassified"
	KindSecondaryLookupFailure ErrorKind = "secondary_lookup_failure"
	KindCancelled              ErrorKind = "cancelled"
)

// Provider error codes that drive classification.
const (
	CodeReaderTimeout      = "terminal_reader_timeout"
	CodeReaderOffline      = "terminal_reader_offline"
	CodeReaderBusy         = "terminal_reader_busy"
	CodeIntentInvalidState = "intent_invalid_state"
)

var codeKinds = map[string]ErrorKind{
	CodeReaderTimeout:      KindReaderTimeout,
	CodeReaderOffline:      KindReaderOffline,
	CodeReaderBusy:         KindReaderBusy,
	CodeIntentInvalidState: KindIntentInvalidState,
}

// Classify maps a provider error code to its kind. Unknown codes are unclassified.
func Classify(code string) ErrorKind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return KindProviderUnclassified
}

// Retryable reports whether another attempt may be made after an error of this kind.
func (k ErrorKind) Retryable() bool {
	return k == KindReaderTimeout
}

// Sentinels for errors.Is matching on kind.
var (
	ErrValidation             = &ProcessingError{Kind: KindValidation}
	ErrReaderTimeoutExhausted = &ProcessingError{Kind: KindReaderTimeoutExhausted}
	ErrReaderOffline          = &ProcessingError{Kind: KindReaderOffline}
	ErrReaderBusy             = &ProcessingError{Kind: KindReaderBusy}
	ErrIntentInvalidState     = &ProcessingError{Kind: KindIntentInvalidState}
	ErrProviderUnclassified   = &ProcessingError{Kind: KindProviderUnclassified}
	ErrSecondaryLookupFailure = &ProcessingError{Kind: KindSecondaryLookupFailure}
	ErrCancelled              = &ProcessingError{Kind: KindCancelled}
)

// ProcessingError is the normalized failure returned by the application layer.
type ProcessingError struct {
	Kind     ErrorKind
	Message  string
	Attempts int
	Err      error
}

func (e *ProcessingError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Is matches another ProcessingError of the same kind.
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewValidationError(msg string) *ProcessingError {
	return &ProcessingError{Kind: KindValidation, Message: msg}
}

// KindOf returns the kind carried by err, or KindProviderUnclassified for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProviderUnclassified
}

// ProviderError is a failure reported by the terminal provider.
type ProviderError struct {
	Code       string
	Message    string
	HTTPStatus int
	RequestID  string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Normalize converts any provider-side error into a ProcessingError with the given
// kind, keeping the provider message verbatim.
func Normalize(kind ErrorKind, err error, attempts int) *ProcessingError {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe
	}
	msg := err.Error()
	var prov *ProviderError
	if errors.As(err, &prov) && prov.Message != "" {
		msg = prov.Message
	}
	return &ProcessingError{Kind: kind, Message: msg, Attempts: attempts, Err: err}
}

// ProviderCode extracts the provider error code from err, if any.
func ProviderCode(err error) string {
	var prov *ProviderError
	if errors.As(err, &prov) {
		return prov.Code
	}
	return ""
}
