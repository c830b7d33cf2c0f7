package stripe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domterminal "github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readerJSON = `{
  "id": "tmr_FDOt2wlRZEdpd7",
  "object": "terminal.reader",
  "label": "Front counter",
  "status": "online",
  "action": {"type": "process_payment_intent", "status": "in_progress"}
}`

const intentJSON = `{
  "id": "pi_1",
  "object": "payment_intent",
  "amount": 1999,
  "currency": "usd",
  "status": "requires_capture",
  "capture_method": "automatic",
  "client_secret": "pi_1_secret_abc"
}`

func stripeError(code, msg string) string {
	return `{"error": {"code": "` + code + `", "message": "` + msg + `", "type": "invalid_request_error"}}`
}

type recordedRequest struct {
	method string
	path   string
	form   url.Values
	header http.Header
}

func newTestClient(t *testing.T, breaker BreakerConfig, handler http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, form: form, header: r.Header.Clone()})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_test")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTPClient: srv.Client(), Breaker: breaker}, nil)
	return c, &reqs
}

func TestProcessPaymentIntentSuccess(t *testing.T) {
	c, reqs := newTestClient(t, BreakerConfig{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, readerJSON)
	})

	reader, err := c.ProcessPaymentIntent(context.Background(), "tmr_FDOt2wlRZEdpd7", "pi_1")

	require.NoError(t, err)
	assert.Equal(t, "tmr_FDOt2wlRZEdpd7", reader.ID)
	assert.Equal(t, "Front counter", reader.Label)
	assert.Equal(t, domterminal.ReaderStatusOnline, reader.Status)
	assert.Equal(t, "process_payment_intent", reader.ActionType)
	assert.Equal(t, "in_progress", reader.ActionStatus)
	assert.JSONEq(t, readerJSON, string(reader.Raw))

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/terminal/readers/tmr_FDOt2wlRZEdpd7/process_payment_intent", got.path)
	assert.Equal(t, "pi_1", got.form.Get("payment_intent"))
}

func TestProcessPaymentIntentProviderError(t *testing.T) {
	c, reqs := newTestClient(t, BreakerConfig{}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, stripeError(domterminal.CodeReaderTimeout, "Reader timed out"))
	})

	_, err := c.ProcessPaymentIntent(context.Background(), "tmr_FDOt2wlRZEdpd7", "pi_1")

	var pe *domterminal.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domterminal.CodeReaderTimeout, pe.Code)
	assert.Equal(t, "Reader timed out", pe.Message)
	assert.Equal(t, http.StatusBadRequest, pe.HTTPStatus)
	assert.Equal(t, domterminal.KindReaderTimeout, domterminal.Classify(pe.Code))
	// the SDK must not retry on its own; the attempt bound lives in the use case
	assert.Len(t, *reqs, 1)
}

func TestRetrievePaymentIntent(t *testing.T) {
	c, reqs := newTestClient(t, BreakerConfig{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, intentJSON)
	})

	pi, err := c.RetrievePaymentIntent(context.Background(), "pi_1")

	require.NoError(t, err)
	assert.Equal(t, domterminal.IntentRequiresCapture, pi.Status)
	assert.EqualValues(t, 1999, pi.Amount)
	assert.Equal(t, "usd", pi.Currency)
	assert.Equal(t, http.MethodGet, (*reqs)[0].method)
	assert.Equal(t, "/v1/payment_intents/pi_1", (*reqs)[0].path)
}

func TestCreatePaymentIntentParams(t *testing.T) {
	c, reqs := newTestClient(t, BreakerConfig{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, intentJSON)
	})

	pi, err := c.CreatePaymentIntent(context.Background(), 1999)

	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_abc", pi.ClientSecret)

	got := (*reqs)[0]
	assert.Equal(t, "/v1/payment_intents", got.path)
	assert.Equal(t, "1999", got.form.Get("amount"))
	assert.Equal(t, "usd", got.form.Get("currency"))
	assert.Equal(t, "automatic", got.form.Get("capture_method"))
	assert.Equal(t, "card_present", got.form.Get("payment_method_types[0]"))
	assert.NotEmpty(t, got.header.Get("Idempotency-Key"))
}

func TestCreateConnectionTokenAndCapture(t *testing.T) {
	c, reqs := newTestClient(t, BreakerConfig{}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/terminal/connection_tokens":
			_, _ = io.WriteString(w, `{"object": "terminal.connection_token", "secret": "pst_test_abc"}`)
		default:
			_, _ = io.WriteString(w, intentJSON)
		}
	})

	secret, err := c.CreateConnectionToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pst_test_abc", secret)

	_, err = c.CapturePaymentIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "/v1/payment_intents/pi_1/capture", (*reqs)[1].path)
}

func TestPresentPaymentMethod(t *testing.T) {
	c, reqs := newTestClient(t, BreakerConfig{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, readerJSON)
	})

	reader, err := c.PresentPaymentMethod(context.Background(), "tmr_FDOt2wlRZEdpd7")

	require.NoError(t, err)
	assert.Equal(t, "tmr_FDOt2wlRZEdpd7", reader.ID)
	assert.Equal(t, "/v1/test_helpers/terminal/readers/tmr_FDOt2wlRZEdpd7/present_payment_method", (*reqs)[0].path)
}

func TestBreakerIgnoresClassifiedErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, BreakerConfig{Enabled: true, Threshold: 2, ResetTimeout: time.Minute}, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, stripeError(domterminal.CodeReaderOffline, "Reader is offline"))
	})

	for i := 0; i < 4; i++ {
		_, err := c.ProcessPaymentIntent(context.Background(), "tmr_FDOt2wlRZEdpd7", "pi_1")
		assert.Equal(t, domterminal.CodeReaderOffline, domterminal.ProviderCode(err))
	}
	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State())
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, BreakerConfig{Enabled: true, Threshold: 2, ResetTimeout: time.Minute}, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": {"message": "An unknown error occurred", "type": "api_error"}}`)
	})

	for i := 0; i < 2; i++ {
		_, err := c.RetrievePaymentIntent(context.Background(), "pi_1")
		require.Error(t, err)
	}
	_, err := c.RetrievePaymentIntent(context.Background(), "pi_1")

	var pe *domterminal.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, pe.Code)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Contains(t, pe.Message, "terminal provider unavailable")
	assert.EqualValues(t, 2, calls.Load())
}

func TestTranslateTransportError(t *testing.T) {
	err := translateError(errors.New("dial tcp 127.0.0.1:1: connect: connection refused"))

	var pe *domterminal.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, pe.Code)
	assert.Equal(t, domterminal.KindProviderUnclassified, domterminal.Classify(pe.Code))
}
