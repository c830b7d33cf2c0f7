package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/terminal-gateway/internal/application"
	"github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService        = "payment-service"
	useCasePaymentProcess = "payment.process"
	paymentSpanName       = "ProcessPayment"
	spanPrefix            = "UC."
	defaultRetryBackoff   = time.Second
)

// RetryPolicy bounds the reader process loop.
type RetryPolicy struct {
	// MaxAttempts caps provider calls per request; zero means terminal.MaxProcessAttempts.
	MaxAttempts int
	// Backoff is the fixed wait after a reader timeout before the next attempt.
	Backoff time.Duration
	// AttemptTimeout bounds a single provider call; zero leaves it to the provider.
	AttemptTimeout time.Duration
	// ConfirmIntent re-fetches the payment intent after the reader accepted the action.
	ConfirmIntent bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   terminal.MaxProcessAttempts,
		Backoff:       defaultRetryBackoff,
		ConfirmIntent: true,
	}
}

type ProcessPaymentInput struct {
	PaymentIntentID string
	ReaderID        string
}

type ProcessPaymentResult struct {
	// Status is the confirmed payment intent status, or the reader action
	// status when confirmation is disabled.
	Status        string
	Reader        *terminal.ReaderState
	PaymentIntent *terminal.PaymentIntent
	Attempts      int
}

var _ application.UseCase[ProcessPaymentInput, *ProcessPaymentResult] = (*ProcessPaymentUseCase)(nil)

// ProcessPaymentUseCase drives a reader through a payment intent, retrying
// only reader timeouts and normalizing every failure into a *terminal.ProcessingError.
type ProcessPaymentUseCase struct {
	provider     terminal.Provider
	policy       RetryPolicy
	readerPrefix string

	tracer     observability.Tracer
	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
	attempts   observability.Counter

	// wait blocks for the backoff; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

func NewProcessPaymentUseCase(
	provider terminal.Provider,
	readerPrefix string,
	policy RetryPolicy,
	tel observability.Observability,
) *ProcessPaymentUseCase {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = terminal.MaxProcessAttempts
	}
	if policy.Backoff < 0 {
		policy.Backoff = 0
	}
	tracer, logger, metrics := observability.Resolve(tel)

	return &ProcessPaymentUseCase{
		provider:     provider,
		policy:       policy,
		readerPrefix: readerPrefix,
		tracer:       tracer,
		log:          logger.With(observability.F("service", paymentService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHist:      metrics.Histogram(observability.MUsecaseDuration),
		attempts:     metrics.Counter(observability.MProcessAttempts),
		wait:         sleepContext,
	}
}

// Execute validates the request, then calls the provider until it succeeds, a
// non-retryable error is reported, the attempt bound is hit, or ctx is cancelled.
// Cancellation is honoured between attempts; an in-flight provider call is never interrupted.
func (uc *ProcessPaymentUseCase) Execute(ctx context.Context, cmd ProcessPaymentInput) (_ *ProcessPaymentResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCasePaymentProcess),
		observability.F("payment_intent_id", cmd.PaymentIntentID),
		observability.F("reader_id", cmd.ReaderID),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+paymentSpanName,
		attribute.String("use_case", useCasePaymentProcess),
		attribute.String("payment_intent.id", cmd.PaymentIntentID),
		attribute.String("reader.id", cmd.ReaderID),
	)
	start := time.Now()
	var result *ProcessPaymentResult
	attempts := 0

	defer func() {
		outcome, kind := "success", ""
		if err != nil {
			outcome, kind = "error", string(terminal.KindOf(err))
		}

		if span != nil {
			span.SetAttributes(attribute.Int("payment.attempts", attempts))
			if err != nil {
				span.SetAttributes(attribute.String("payment.error_kind", kind))
				span.RecordError(err)
				span.SetStatus(codes.Error, kind)
			} else {
				span.SetAttributes(attribute.String("payment.status", result.Status))
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
		}

		latency := time.Since(start).Seconds()
		uc.reqCounter.Add(1,
			observability.L("use_case", useCasePaymentProcess),
			observability.L("outcome", outcome),
		)
		uc.durHist.Observe(latency,
			observability.L("use_case", useCasePaymentProcess),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("attempts", attempts),
			observability.F("latency_seconds", latency),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if result != nil {
			fields = append(fields, observability.F("payment_status", result.Status))
		}
		if err != nil {
			fields = append(fields, observability.F("error_kind", kind), observability.Err(err))
		}
		logger.Info("use_case_done", fields...)
	}()

	req := terminal.ProcessRequest{PaymentIntentID: cmd.PaymentIntentID, ReaderID: cmd.ReaderID}
	if err = req.Validate(uc.readerPrefix); err != nil {
		return nil, err
	}

	result, err = uc.process(ctx, logger, req, &attempts)
	return result, err
}

func (uc *ProcessPaymentUseCase) process(
	ctx context.Context,
	logger observability.Logger,
	req terminal.ProcessRequest,
	attempts *int,
) (*ProcessPaymentResult, error) {
	maxAttempts := uc.policy.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr, attempt-1)
		}
		*attempts = attempt

		reader, err := uc.callProcess(ctx, req)
		if err == nil {
			uc.attempts.Add(1, observability.L("result", "success"))
			return uc.confirm(ctx, req, reader, attempt)
		}

		kind := terminal.Classify(terminal.ProviderCode(err))
		uc.attempts.Add(1, observability.L("result", string(kind)))
		logger.Warn("process_attempt_failed",
			observability.F("attempt", attempt),
			observability.F("error_kind", string(kind)),
			observability.F("provider_code", terminal.ProviderCode(err)),
			observability.Err(err),
		)

		switch kind {
		case terminal.KindReaderTimeout:
			if attempt == maxAttempts {
				pe := terminal.Normalize(terminal.KindReaderTimeoutExhausted, err, attempt)
				pe.Message = fmt.Sprintf("reader timed out after %d attempts: %s", attempt, pe.Message)
				return nil, pe
			}
			if werr := uc.wait(ctx, uc.policy.Backoff); werr != nil {
				return nil, cancelled(werr, attempt)
			}
		case terminal.KindIntentInvalidState:
			return nil, uc.describeInvalidState(ctx, logger, req, err, attempt)
		case terminal.KindReaderOffline, terminal.KindReaderBusy:
			uc.logIntentStatus(ctx, logger, req)
			return nil, terminal.Normalize(kind, err, attempt)
		default:
			return nil, terminal.Normalize(kind, err, attempt)
		}
	}

	return nil, &terminal.ProcessingError{
		Kind:     terminal.KindProviderUnclassified,
		Message:  "max retries reached",
		Attempts: maxAttempts,
	}
}

func (uc *ProcessPaymentUseCase) callProcess(ctx context.Context, req terminal.ProcessRequest) (*terminal.ReaderState, error) {
	callCtx, cancel := uc.callContext(ctx)
	defer cancel()
	return uc.provider.ProcessPaymentIntent(callCtx, req.ReaderID, req.PaymentIntentID)
}

func (uc *ProcessPaymentUseCase) lookupIntent(ctx context.Context, id string) (*terminal.PaymentIntent, error) {
	callCtx, cancel := uc.callContext(ctx)
	defer cancel()
	return uc.provider.RetrievePaymentIntent(callCtx, id)
}

// callContext detaches a provider call from the caller's cancellation and
// applies the optional per-attempt timeout.
func (uc *ProcessPaymentUseCase) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx := context.WithoutCancel(ctx)
	if uc.policy.AttemptTimeout > 0 {
		return context.WithTimeout(callCtx, uc.policy.AttemptTimeout)
	}
	return callCtx, func() {}
}

func (uc *ProcessPaymentUseCase) confirm(
	ctx context.Context,
	req terminal.ProcessRequest,
	reader *terminal.ReaderState,
	attempt int,
) (*ProcessPaymentResult, error) {
	result := &ProcessPaymentResult{Reader: reader, Attempts: attempt}
	if !uc.policy.ConfirmIntent {
		if reader != nil {
			result.Status = reader.ActionStatus
		}
		return result, nil
	}

	intent, err := uc.lookupIntent(ctx, req.PaymentIntentID)
	if err != nil {
		pe := terminal.Normalize(terminal.KindSecondaryLookupFailure, err, attempt)
		pe.Message = "payment intent lookup after processing failed: " + pe.Message
		return nil, pe
	}
	result.PaymentIntent = intent
	result.Status = string(intent.Status)
	return result, nil
}

// describeInvalidState appends the intent's current status to the provider
// message. A failed lookup is logged and the original error returned unchanged.
func (uc *ProcessPaymentUseCase) describeInvalidState(
	ctx context.Context,
	logger observability.Logger,
	req terminal.ProcessRequest,
	cause error,
	attempt int,
) error {
	pe := terminal.Normalize(terminal.KindIntentInvalidState, cause, attempt)
	if status, ok := uc.logIntentStatus(ctx, logger, req); ok {
		pe.Message = fmt.Sprintf("%s (payment intent status: %s)", pe.Message, status)
	}
	return pe
}

// logIntentStatus fetches and logs the intent's current status for diagnosis.
// It never fails the request.
func (uc *ProcessPaymentUseCase) logIntentStatus(
	ctx context.Context,
	logger observability.Logger,
	req terminal.ProcessRequest,
) (terminal.IntentStatus, bool) {
	intent, err := uc.lookupIntent(ctx, req.PaymentIntentID)
	if err != nil {
		logger.Warn("intent_status_lookup_failed",
			observability.F("kind", string(terminal.KindSecondaryLookupFailure)),
			observability.Err(err),
		)
		return "", false
	}

	logger.Info("intent_status_lookup", observability.F("payment_intent_status", string(intent.Status)))
	return intent.Status, true
}

func cancelled(err error, attempts int) *terminal.ProcessingError {
	return &terminal.ProcessingError{
		Kind:     terminal.KindCancelled,
		Message:  "processing cancelled: " + err.Error(),
		Attempts: attempts,
		Err:      err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
