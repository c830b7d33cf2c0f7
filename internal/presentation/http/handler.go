package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Zhima-Mochi/terminal-gateway/internal/application"
	appPayment "github.com/Zhima-Mochi/terminal-gateway/internal/application/payment"
	domterminal "github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability/logctx"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// PaymentProcessor drives a reader through a payment intent.
type PaymentProcessor = application.UseCase[appPayment.ProcessPaymentInput, *appPayment.ProcessPaymentResult]

// TerminalService covers the pass-through provider operations.
type TerminalService interface {
	CreateConnectionToken(ctx context.Context) (string, error)
	CreatePaymentIntent(ctx context.Context, amount int64) (*domterminal.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, paymentIntentID string) (*domterminal.PaymentIntent, error)
	SimulatePayment(ctx context.Context, readerID string) (*domterminal.ReaderState, error)
}

type Options struct {
	AllowedOrigins []string
	// StaticDir is served at "/" when it exists.
	StaticDir string
}

type Handler struct {
	processor PaymentProcessor
	terminal  TerminalService
	log       observability.Logger
	tel       observability.Observability
	opts      Options
	now       func() time.Time
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	maxBodyBytes         = 1 << 20
)

func NewHandler(processor PaymentProcessor, terminalSvc TerminalService, logger observability.Logger,
	tel observability.Observability, opts Options,
) *Handler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		processor: processor,
		terminal:  terminalSvc,
		log:       baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:       tel,
		opts:      opts,
		now:       time.Now,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Wire each route with middlewares:
	// Trace → ObservabilityMiddleware (request logger + HTTP metrics) → Access log → Handler
	h.muxHandle(mux, http.MethodPost, "/process_payment", h.handleProcessPayment)
	h.muxHandle(mux, http.MethodPost, "/connection_token", h.handleConnectionToken)
	h.muxHandle(mux, http.MethodPost, "/create_payment_intent", h.handleCreatePaymentIntent)
	h.muxHandle(mux, http.MethodPost, "/capture_payment_intent", h.handleCapturePaymentIntent)
	h.muxHandle(mux, http.MethodPost, "/simulate_payment", h.handleSimulatePayment)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	if dir := h.opts.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(dir)))
		} else {
			h.log.Debug("static_dir_skipped", observability.F("dir", dir))
		}
	}

	return cors.New(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID},
		MaxAge:         600,
	}).Handler(mux)
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, path string, handler http.HandlerFunc) {
	route := method + " " + path
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			h.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}

		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), route)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				h.tel,
			)(
				h.withAccessLog(handler),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type processPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ReaderID        string `json:"reader_id"`
}

type processPaymentResponse struct {
	Status        string `json:"status"`
	Reader        any    `json:"reader"`
	PaymentIntent any    `json:"paymentIntent"`
	Attempts      int    `json:"attempts"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.processor.Execute(r.Context(), appPayment.ProcessPaymentInput{
		PaymentIntentID: req.PaymentIntentID,
		ReaderID:        req.ReaderID,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, processPaymentResponse{
		Status:        result.Status,
		Reader:        readerPayload(result.Reader),
		PaymentIntent: intentPayload(result.PaymentIntent),
		Attempts:      result.Attempts,
		Timestamp:     h.timestamp(),
	})
}

type connectionTokenResponse struct {
	Secret    string `json:"secret"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) handleConnectionToken(w http.ResponseWriter, r *http.Request) {
	secret, err := h.terminal.CreateConnectionToken(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, connectionTokenResponse{Secret: secret, Timestamp: h.timestamp()})
}

type createPaymentIntentRequest struct {
	Amount int64 `json:"amount"`
}

type createPaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Timestamp       string `json:"timestamp"`
}

func (h *Handler) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createPaymentIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	intent, err := h.terminal.CreatePaymentIntent(r.Context(), req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, createPaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Timestamp:       h.timestamp(),
	})
}

type capturePaymentIntentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type capturePaymentIntentResponse struct {
	PaymentIntent any    `json:"paymentIntent"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) handleCapturePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req capturePaymentIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	intent, err := h.terminal.CapturePaymentIntent(r.Context(), req.PaymentIntentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, capturePaymentIntentResponse{
		PaymentIntent: intentPayload(intent),
		Timestamp:     h.timestamp(),
	})
}

type simulatePaymentRequest struct {
	ReaderID string `json:"reader_id"`
}

type simulatePaymentResponse struct {
	Reader    any    `json:"reader"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) handleSimulatePayment(w http.ResponseWriter, r *http.Request) {
	var req simulatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	reader, err := h.terminal.SimulatePayment(r.Context(), req.ReaderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, simulatePaymentResponse{Reader: readerPayload(reader), Timestamp: h.timestamp()})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("terminal-gateway.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Timestamp: h.timestamp()})
}

// writeDomainError renders a *terminal.ProcessingError with the status its kind maps to.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	kind := domterminal.KindOf(err)
	msg := err.Error()
	var pe *domterminal.ProcessingError
	if errors.As(err, &pe) && pe.Message != "" {
		msg = pe.Message
	}
	h.writeJSON(w, statusForKind(kind), errorResponse{Error: msg, Kind: string(kind), Timestamp: h.timestamp()})
}

func statusForKind(kind domterminal.ErrorKind) int {
	switch kind {
	case domterminal.KindValidation,
		domterminal.KindReaderOffline,
		domterminal.KindReaderBusy,
		domterminal.KindIntentInvalidState:
		return http.StatusBadRequest
	case domterminal.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type readerView struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	Status       string `json:"status,omitempty"`
	ActionType   string `json:"action_type,omitempty"`
	ActionStatus string `json:"action_status,omitempty"`
}

// readerPayload passes the provider's reader object through verbatim when available.
func readerPayload(r *domterminal.ReaderState) any {
	if r == nil {
		return nil
	}
	if len(r.Raw) > 0 {
		return r.Raw
	}
	return readerView{ID: r.ID, Label: r.Label, Status: string(r.Status), ActionType: r.ActionType, ActionStatus: r.ActionStatus}
}

type intentView struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	CaptureMethod string `json:"capture_method,omitempty"`
}

func intentPayload(pi *domterminal.PaymentIntent) any {
	if pi == nil {
		return nil
	}
	if len(pi.Raw) > 0 {
		return pi.Raw
	}
	return intentView{ID: pi.ID, Status: string(pi.Status), Amount: pi.Amount, Currency: pi.Currency, CaptureMethod: pi.CaptureMethod}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
