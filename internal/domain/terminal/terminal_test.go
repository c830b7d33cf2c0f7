package terminal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ProcessRequest
		wantErr string
	}{
		{name: "valid", req: ProcessRequest{PaymentIntentID: "pi_1", ReaderID: "tmr_abc"}},
		{name: "missing intent", req: ProcessRequest{ReaderID: "tmr_abc"}, wantErr: "payment_intent_id is required"},
		{name: "blank intent", req: ProcessRequest{PaymentIntentID: "  ", ReaderID: "tmr_abc"}, wantErr: "payment_intent_id is required"},
		{name: "missing reader", req: ProcessRequest{PaymentIntentID: "pi_1"}, wantErr: "reader_id is required"},
		{name: "bad prefix", req: ProcessRequest{PaymentIntentID: "pi_1", ReaderID: "badid"}, wantErr: "reader_id must start with tmr_"},
		{name: "prefix only", req: ProcessRequest{PaymentIntentID: "pi_1", ReaderID: "tmr_"}, wantErr: "reader_id must start with tmr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(DefaultReaderPrefix)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReaderIDWithoutPrefix(t *testing.T) {
	assert.NoError(t, ValidateReaderID("WSC513208022998", ""))
	assert.ErrorIs(t, ValidateReaderID("", ""), ErrValidation)
}

func TestClassify(t *testing.T) {
	tests := map[string]ErrorKind{
		CodeReaderTimeout:          KindReaderTimeout,
		CodeReaderOffline:          KindReaderOffline,
		CodeReaderBusy:             KindReaderBusy,
		CodeIntentInvalidState:     KindIntentInvalidState,
		"card_declined":            KindProviderUnclassified,
		"":                         KindProviderUnclassified,
		"terminal_reader_hardware": KindProviderUnclassified,
	}
	for code, want := range tests {
		// classification must not depend on how often it is asked
		for i := 0; i < 3; i++ {
			assert.Equal(t, want, Classify(code), "code %q", code)
		}
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, KindReaderTimeout.Retryable())
	for _, k := range []ErrorKind{KindReaderOffline, KindReaderBusy, KindIntentInvalidState, KindProviderUnclassified, KindReaderTimeoutExhausted} {
		assert.False(t, k.Retryable(), string(k))
	}
}

func TestProcessingErrorMatching(t *testing.T) {
	cause := &ProviderError{Code: CodeReaderBusy, Message: "Reader is busy"}
	err := fmt.Errorf("wrapped: %w", &ProcessingError{Kind: KindReaderBusy, Message: "Reader is busy", Err: cause})

	assert.ErrorIs(t, err, ErrReaderBusy)
	assert.NotErrorIs(t, err, ErrReaderOffline)
	assert.Equal(t, KindReaderBusy, KindOf(err))
	assert.Equal(t, CodeReaderBusy, ProviderCode(err))

	var prov *ProviderError
	require.ErrorAs(t, err, &prov)
	assert.Equal(t, "Reader is busy", prov.Message)
}

func TestNormalize(t *testing.T) {
	prov := &ProviderError{Code: "resource_missing", Message: "No such payment_intent: 'pi_x'"}
	pe := Normalize(KindProviderUnclassified, prov, 1)
	assert.Equal(t, KindProviderUnclassified, pe.Kind)
	assert.Equal(t, "No such payment_intent: 'pi_x'", pe.Message)
	assert.Equal(t, 1, pe.Attempts)

	already := NewValidationError("amount must be positive")
	assert.Same(t, already, Normalize(KindProviderUnclassified, already, 0))

	plain := Normalize(KindProviderUnclassified, errors.New("connection reset"), 2)
	assert.Equal(t, "connection reset", plain.Message)
	assert.Equal(t, KindProviderUnclassified, KindOf(errors.New("x")))
}
