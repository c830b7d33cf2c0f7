package terminal

import (
	"encoding/json"
	"strings"
)

// DefaultReaderPrefix is the identifier prefix Stripe assigns to reader objects.
const DefaultReaderPrefix = "tmr_"

// MaxProcessAttempts bounds how many times a reader is driven for one request.
const MaxProcessAttempts = 3

type ReaderStatus string

const (
	ReaderStatusOnline  ReaderStatus = "online"
	ReaderStatusOffline ReaderStatus = "offline"
)

// ReaderState is the provider's reader object after an action was issued.
// Raw carries the provider payload verbatim so callers see every field.
type ReaderState struct {
	ID           string
	Label        string
	Status       ReaderStatus
	ActionType   string
	ActionStatus string
	Raw          json.RawMessage
}

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentCanceled              IntentStatus = "canceled"
	IntentSucceeded             IntentStatus = "succeeded"
)

// PaymentIntent mirrors the subset of the provider's payment intent this service reads.
type PaymentIntent struct {
	ID            string
	Status        IntentStatus
	Amount        int64
	Currency      string
	CaptureMethod string
	ClientSecret  string
	Raw           json.RawMessage
}

// ProcessRequest asks for a reader to collect payment for an intent.
type ProcessRequest struct {
	PaymentIntentID string
	ReaderID        string
}

// Validate checks the request before anything is sent to the provider.
func (r ProcessRequest) Validate(readerPrefix string) error {
	if strings.TrimSpace(r.PaymentIntentID) == "" {
		return NewValidationError("payment_intent_id is required")
	}
	return ValidateReaderID(r.ReaderID, readerPrefix)
}

// ValidateReaderID rejects empty identifiers and identifiers without the provider prefix.
func ValidateReaderID(readerID, prefix string) error {
	if strings.TrimSpace(readerID) == "" {
		return NewValidationError("reader_id is required")
	}
	if prefix != "" && (!strings.HasPrefix(readerID, prefix) || len(readerID) == len(prefix)) {
		return NewValidationError("reader_id must start with " + prefix)
	}
	return nil
}
