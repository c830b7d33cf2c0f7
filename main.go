package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appPayment "github.com/Zhima-Mochi/terminal-gateway/internal/application/payment"
	appTerminal "github.com/Zhima-Mochi/terminal-gateway/internal/application/terminal"
	"github.com/Zhima-Mochi/terminal-gateway/internal/config"
	domterminal "github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	obsinfra "github.com/Zhima-Mochi/terminal-gateway/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/terminal-gateway/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/terminal-gateway/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/terminal-gateway/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/terminal-gateway/internal/infrastructure/stripe"
	"github.com/Zhima-Mochi/terminal-gateway/internal/observability"
	"github.com/Zhima-Mochi/terminal-gateway/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/terminal-gateway/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := logging.MustNewLogger(config.DefaultServiceName, config.DefaultEnv, "")
		bootLogger.Fatal("config_load_failed", zap.Error(err))
	}

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env, cfg.LogFile)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	logger := zaplogger.New(baseLogger)
	systemLogger := logger.With(observability.F("component", "system"))

	counters, histograms := prometrics.Instruments(prometrics.New(nil, "", ""))
	tel := obsinfra.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	provider := stripe.New(stripe.Config{
		SecretKey: cfg.StripeSecretKey,
		Breaker: stripe.BreakerConfig{
			Enabled:      cfg.CircuitBreaker.Enabled,
			Threshold:    cfg.CircuitBreaker.Threshold,
			ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
		},
	}, tel)

	processUseCase := appPayment.NewProcessPaymentUseCase(provider, cfg.Reader.IDPrefix, appPayment.RetryPolicy{
		MaxAttempts:    domterminal.MaxProcessAttempts,
		Backoff:        cfg.Process.Backoff,
		AttemptTimeout: cfg.Process.AttemptTimeout,
		ConfirmIntent:  cfg.Process.ConfirmIntent,
	}, tel)
	terminalService := appTerminal.NewService(provider, cfg.Reader.IDPrefix, cfg.Reader.DefaultID, tel)

	handler := httppresentation.NewHandler(processUseCase, terminalService, logger, tel, httppresentation.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		StaticDir:      cfg.StaticDir,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("allowed_origins", cfg.AllowedOrigins),
			observability.F("static_dir", cfg.StaticDir),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.Err(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
}
