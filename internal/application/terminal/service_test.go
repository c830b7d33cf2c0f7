package terminal

import (
	"context"
	"errors"
	"testing"

	domterminal "github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	"github.com/Zhima-Mochi/terminal-gateway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(p *testutil.FakeProvider, defaultReader string) *Service {
	return NewService(p, domterminal.DefaultReaderPrefix, defaultReader, nil)
}

func TestCreateConnectionToken(t *testing.T) {
	p := &testutil.FakeProvider{Token: "pst_test_123"}

	secret, err := newService(p, "").CreateConnectionToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "pst_test_123", secret)
	assert.Equal(t, 1, p.TokenCalls)
}

func TestCreateConnectionTokenProviderError(t *testing.T) {
	p := &testutil.FakeProvider{TokenErr: testutil.ProviderErr("api_key_expired", "Expired API Key provided")}

	_, err := newService(p, "").CreateConnectionToken(context.Background())

	require.ErrorIs(t, err, domterminal.ErrProviderUnclassified)
	assert.Contains(t, err.Error(), "Expired API Key provided")
}

func TestCreatePaymentIntent(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		wantErr   error
		wantCalls int
	}{
		{name: "positive", amount: 1999, wantCalls: 1},
		{name: "zero", amount: 0, wantErr: domterminal.ErrValidation},
		{name: "negative", amount: -5, wantErr: domterminal.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &testutil.FakeProvider{}

			intent, err := newService(p, "").CreatePaymentIntent(context.Background(), tt.amount)

			assert.Equal(t, tt.wantCalls, p.CreateCalls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, p.LastAmount)
			assert.Equal(t, "pi_new_secret_abc", intent.ClientSecret)
		})
	}
}

func TestCapturePaymentIntent(t *testing.T) {
	p := &testutil.FakeProvider{}
	svc := newService(p, "")

	_, err := svc.CapturePaymentIntent(context.Background(), "")
	assert.ErrorIs(t, err, domterminal.ErrValidation)
	assert.Zero(t, p.CaptureCalls)

	intent, err := svc.CapturePaymentIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domterminal.IntentSucceeded, intent.Status)

	p.CaptureErr = errors.New("boom")
	_, err = svc.CapturePaymentIntent(context.Background(), "pi_1")
	assert.ErrorIs(t, err, domterminal.ErrProviderUnclassified)
}

func TestSimulatePayment(t *testing.T) {
	t.Run("explicit reader", func(t *testing.T) {
		p := &testutil.FakeProvider{}
		reader, err := newService(p, "tmr_default").SimulatePayment(context.Background(), "tmr_explicit")
		require.NoError(t, err)
		assert.Equal(t, "tmr_explicit", reader.ID)
		assert.Equal(t, "tmr_explicit", p.LastReaderID)
	})

	t.Run("default reader", func(t *testing.T) {
		p := &testutil.FakeProvider{}
		_, err := newService(p, "tmr_default").SimulatePayment(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "tmr_default", p.LastReaderID)
	})

	t.Run("no reader configured", func(t *testing.T) {
		p := &testutil.FakeProvider{}
		_, err := newService(p, "").SimulatePayment(context.Background(), "")
		assert.ErrorIs(t, err, domterminal.ErrValidation)
		assert.Zero(t, p.PresentCalls)
	})

	t.Run("malformed reader", func(t *testing.T) {
		p := &testutil.FakeProvider{}
		_, err := newService(p, "").SimulatePayment(context.Background(), "WSC513208022998")
		assert.ErrorIs(t, err, domterminal.ErrValidation)
		assert.Zero(t, p.PresentCalls)
	})
}
