package terminal

import (
	"context"
	"strings"
	"time"

	domterminal "github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability/logctx"
)

const terminalService = "terminal-service"

// Service exposes the pass-through provider operations around a payment:
// connection tokens, intent creation, capture and simulated card presentation.
type Service struct {
	provider        domterminal.Provider
	readerPrefix    string
	defaultReaderID string

	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
}

func NewService(provider domterminal.Provider, readerPrefix, defaultReaderID string, tel observability.Observability) *Service {
	_, logger, metrics := observability.Resolve(tel)
	return &Service{
		provider:        provider,
		readerPrefix:    readerPrefix,
		defaultReaderID: defaultReaderID,
		log:             logger.With(observability.F("service", terminalService)),
		reqCounter:      metrics.Counter(observability.MUsecaseRequests),
		durHist:         metrics.Histogram(observability.MUsecaseDuration),
	}
}

// CreateConnectionToken mints a token for a client SDK to register a reader.
func (s *Service) CreateConnectionToken(ctx context.Context) (secret string, err error) {
	defer s.observe(ctx, "terminal.connection_token", time.Now(), &err)

	secret, err = s.provider.CreateConnectionToken(ctx)
	if err != nil {
		return "", domterminal.Normalize(domterminal.KindProviderUnclassified, err, 1)
	}
	return secret, nil
}

// CreatePaymentIntent creates a card-present intent for amount minor units.
func (s *Service) CreatePaymentIntent(ctx context.Context, amount int64) (intent *domterminal.PaymentIntent, err error) {
	defer s.observe(ctx, "terminal.create_payment_intent", time.Now(), &err)

	if amount <= 0 {
		return nil, domterminal.NewValidationError("amount must be a positive integer")
	}
	intent, err = s.provider.CreatePaymentIntent(ctx, amount)
	if err != nil {
		return nil, domterminal.Normalize(domterminal.KindProviderUnclassified, err, 1)
	}
	return intent, nil
}

// CapturePaymentIntent captures an authorized intent.
func (s *Service) CapturePaymentIntent(ctx context.Context, paymentIntentID string) (intent *domterminal.PaymentIntent, err error) {
	defer s.observe(ctx, "terminal.capture_payment_intent", time.Now(), &err)

	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, domterminal.NewValidationError("payment_intent_id is required")
	}
	intent, err = s.provider.CapturePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, domterminal.Normalize(domterminal.KindProviderUnclassified, err, 1)
	}
	return intent, nil
}

// SimulatePayment presents a test card on a simulated reader. An empty
// readerID falls back to the configured default reader.
func (s *Service) SimulatePayment(ctx context.Context, readerID string) (reader *domterminal.ReaderState, err error) {
	defer s.observe(ctx, "terminal.simulate_payment", time.Now(), &err)

	if readerID == "" {
		readerID = s.defaultReaderID
	}
	if err = domterminal.ValidateReaderID(readerID, s.readerPrefix); err != nil {
		return nil, err
	}
	reader, err = s.provider.PresentPaymentMethod(ctx, readerID)
	if err != nil {
		return nil, domterminal.Normalize(domterminal.KindProviderUnclassified, err, 1)
	}
	return reader, nil
}

func (s *Service) observe(ctx context.Context, useCase string, start time.Time, errp *error) {
	outcome := "success"
	latency := time.Since(start).Seconds()
	fields := []observability.Field{
		observability.F("use_case", useCase),
		observability.F("latency_seconds", latency),
	}
	if errp != nil && *errp != nil {
		outcome = "error"
		fields = append(fields,
			observability.F("error_kind", string(domterminal.KindOf(*errp))),
			observability.Err(*errp),
		)
	}
	fields = append(fields, observability.F("outcome", outcome))

	s.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
	s.durHist.Observe(latency, observability.L("use_case", useCase))
	logctx.FromOr(ctx, s.log).Info("use_case_done", fields...)
}
