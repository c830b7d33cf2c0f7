// Package stripe implements the terminal provider port on top of the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	domterminal "github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	"github.com/Zhima-Mochi/terminal-gateway/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	providerName   = "stripe"
	intentMethod   = "card_present"
	intentCurrency = stripeapi.CurrencyUSD
)

// BreakerConfig guards provider calls. Only transport failures and 5xx responses
// count against the breaker; classified provider errors do not.
type BreakerConfig struct {
	Enabled      bool
	Threshold    int
	ResetTimeout time.Duration
}

type Config struct {
	SecretKey string
	// BaseURL overrides the API endpoint; empty means api.stripe.com.
	BaseURL    string
	HTTPClient *http.Client
	Breaker    BreakerConfig
}

// Client talks to Stripe Terminal and the PaymentIntents API.
type Client struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker

	tracer   observability.Tracer
	log      observability.Logger
	requests observability.Counter
	duration observability.Histogram
}

var _ domterminal.Provider = (*Client)(nil)

func New(cfg Config, tel observability.Observability) *Client {
	_, logger, metrics := observability.Resolve(tel)
	logger = logger.With(observability.F("component", "stripe_client"))

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		LeveledLogger:     &leveledLogger{log: logger},
		MaxNetworkRetries: stripeapi.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripeapi.String(cfg.BaseURL)
	}
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)

	c := &Client{
		api: client.New(cfg.SecretKey, &stripeapi.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		tracer:   oteltrace.NewClient("terminal-gateway.stripe"),
		log:      logger,
		requests: metrics.Counter(observability.MExternalRequests),
		duration: metrics.Histogram(observability.MExternalRequestDuration),
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker, logger)
	}
	return c
}

func newBreaker(cfg BreakerConfig, logger observability.Logger) *gobreaker.CircuitBreaker {
	threshold := uint32(max(cfg.Threshold, 1))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    providerName,
		Timeout: cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *stripeapi.Error
			return errors.As(err, &se) && se.HTTPStatusCode > 0 && se.HTTPStatusCode < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change",
				observability.F("breaker", name),
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
		},
	})
}

func (c *Client) ProcessPaymentIntent(ctx context.Context, readerID, paymentIntentID string) (*domterminal.ReaderState, error) {
	params := &stripeapi.TerminalReaderProcessPaymentIntentParams{
		PaymentIntent: stripeapi.String(paymentIntentID),
	}
	params.Context = ctx
	r, err := call(ctx, c, "terminal.readers.process_payment_intent", func() (*stripeapi.TerminalReader, error) {
		return c.api.TerminalReaders.ProcessPaymentIntent(readerID, params)
	})
	if err != nil {
		return nil, err
	}
	return toReaderState(r), nil
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*domterminal.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	pi, err := call(ctx, c, "payment_intents.retrieve", func() (*stripeapi.PaymentIntent, error) {
		return c.api.PaymentIntents.Get(paymentIntentID, params)
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) CreateConnectionToken(ctx context.Context) (string, error) {
	params := &stripeapi.TerminalConnectionTokenParams{}
	params.Context = ctx
	token, err := call(ctx, c, "terminal.connection_tokens.create", func() (*stripeapi.TerminalConnectionToken, error) {
		return c.api.TerminalConnectionTokens.New(params)
	})
	if err != nil {
		return "", err
	}
	return token.Secret, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, amount int64) (*domterminal.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:             stripeapi.Int64(amount),
		Currency:           stripeapi.String(string(intentCurrency)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{intentMethod}),
		CaptureMethod:      stripeapi.String(string(stripeapi.PaymentIntentCaptureMethodAutomatic)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	pi, err := call(ctx, c, "payment_intents.create", func() (*stripeapi.PaymentIntent, error) {
		return c.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) CapturePaymentIntent(ctx context.Context, paymentIntentID string) (*domterminal.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentCaptureParams{}
	params.Context = ctx
	pi, err := call(ctx, c, "payment_intents.capture", func() (*stripeapi.PaymentIntent, error) {
		return c.api.PaymentIntents.Capture(paymentIntentID, params)
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) PresentPaymentMethod(ctx context.Context, readerID string) (*domterminal.ReaderState, error) {
	params := &stripeapi.TestHelpersTerminalReaderPresentPaymentMethodParams{}
	params.Context = ctx
	r, err := call(ctx, c, "test_helpers.terminal.readers.present_payment_method", func() (*stripeapi.TerminalReader, error) {
		return c.api.TestHelpersTerminalReaders.PresentPaymentMethod(readerID, params)
	})
	if err != nil {
		return nil, err
	}
	return toReaderState(r), nil
}

// call runs fn through the breaker and records a client span plus the
// external request metrics for op. Errors come back as *domterminal.ProviderError.
func call[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	_, span := c.tracer.Start(ctx, "stripe."+op,
		attribute.String("peer.service", providerName),
		attribute.String("provider.operation", op),
	)
	defer span.End()
	start := time.Now()

	var (
		res T
		err error
	)
	if c.breaker != nil {
		var out interface{}
		out, err = c.breaker.Execute(func() (interface{}, error) { return fn() })
		if out != nil {
			res = out.(T)
		}
	} else {
		res, err = fn()
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		err = translateError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, domterminal.ProviderCode(err))
		if code := domterminal.ProviderCode(err); code != "" {
			span.SetAttributes(attribute.String("provider.error_code", code))
		}
	} else {
		span.SetStatus(codes.Ok, "OK")
	}

	c.requests.Add(1, observability.L("operation", op), observability.L("outcome", outcome))
	c.duration.Observe(time.Since(start).Seconds(), observability.L("operation", op))
	return res, err
}

// translateError maps SDK and breaker errors onto the provider error type.
func translateError(err error) error {
	var se *stripeapi.Error
	switch {
	case errors.As(err, &se):
		msg := se.Msg
		if msg == "" {
			msg = err.Error()
		}
		return &domterminal.ProviderError{
			Code:       string(se.Code),
			Message:    msg,
			HTTPStatus: se.HTTPStatusCode,
			RequestID:  se.RequestID,
			Err:        err,
		}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domterminal.ProviderError{
			Message: "terminal provider unavailable: " + err.Error(),
			Err:     err,
		}
	default:
		return &domterminal.ProviderError{Message: err.Error(), Err: err}
	}
}

func toReaderState(r *stripeapi.TerminalReader) *domterminal.ReaderState {
	if r == nil {
		return nil
	}
	state := &domterminal.ReaderState{
		ID:     r.ID,
		Label:  r.Label,
		Status: domterminal.ReaderStatus(r.Status),
		Raw:    rawJSON(r.LastResponse, r),
	}
	if r.Action != nil {
		state.ActionType = string(r.Action.Type)
		state.ActionStatus = string(r.Action.Status)
	}
	return state
}

func toPaymentIntent(pi *stripeapi.PaymentIntent) *domterminal.PaymentIntent {
	if pi == nil {
		return nil
	}
	return &domterminal.PaymentIntent{
		ID:            pi.ID,
		Status:        domterminal.IntentStatus(pi.Status),
		Amount:        pi.Amount,
		Currency:      string(pi.Currency),
		CaptureMethod: string(pi.CaptureMethod),
		ClientSecret:  pi.ClientSecret,
		Raw:           rawJSON(pi.LastResponse, pi),
	}
}

// rawJSON prefers the verbatim response body and falls back to re-encoding v.
func rawJSON(resp *stripeapi.APIResponse, v any) json.RawMessage {
	if resp != nil && len(resp.RawJSON) > 0 {
		return json.RawMessage(resp.RawJSON)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
