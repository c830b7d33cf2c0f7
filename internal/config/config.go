package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
	"github.com/joho/godotenv"
)

// Config holds the configuration for the terminal gateway
type Config struct {
	ServiceName     string
	Env             string
	Port            string
	StripeSecretKey string
	AllowedOrigins  []string
	StaticDir       string
	LogFile         string
	ShutdownTimeout time.Duration
	Reader          ReaderConfig
	Process         ProcessConfig
	CircuitBreaker  CircuitBreakerConfig
}

// ReaderConfig holds reader identification settings
type ReaderConfig struct {
	IDPrefix  string
	DefaultID string
}

// ProcessConfig tunes the reader process loop
type ProcessConfig struct {
	Backoff        time.Duration
	AttemptTimeout time.Duration
	ConfirmIntent  bool
}

// CircuitBreakerConfig holds circuit breaker configuration for provider calls
type CircuitBreakerConfig struct {
	Enabled      bool
	Threshold    int
	ResetTimeout time.Duration
}

// LoadConfig loads the configuration from the given .env files (default ".env")
// and the process environment. Missing .env files are not an error.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	port, err := GetEnvPort()
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout, false)
	if err != nil {
		return nil, err
	}
	backoff, err := getEnvDuration("PROCESS_RETRY_BACKOFF", DefaultRetryBackoff, true)
	if err != nil {
		return nil, err
	}
	attemptTimeout, err := getEnvDuration("PROCESS_ATTEMPT_TIMEOUT", 0, true)
	if err != nil {
		return nil, err
	}
	confirmIntent, err := getEnvBool("PROCESS_CONFIRM_INTENT", DefaultConfirmIntent)
	if err != nil {
		return nil, err
	}
	cbEnabled, err := getEnvBool("PROVIDER_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
	if err != nil {
		return nil, err
	}
	cbThreshold, err := getEnvPositiveInt("PROVIDER_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
	if err != nil {
		return nil, err
	}
	cbReset, err := getEnvDuration("PROVIDER_BREAKER_RESET", DefaultCircuitBreakerReset, false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName:     getEnvDefault("SERVICE_NAME", DefaultServiceName),
		Env:             getEnvDefault("ENV", DefaultEnv),
		Port:            port,
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		AllowedOrigins:  GetEnvAllowedOrigins(),
		StaticDir:       getEnvDefault("STATIC_DIR", DefaultStaticDir),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,
		Reader: ReaderConfig{
			IDPrefix:  getEnvDefault("READER_ID_PREFIX", DefaultReaderIDPrefix),
			DefaultID: os.Getenv("DEFAULT_READER_ID"),
		},
		Process: ProcessConfig{
			Backoff:        backoff,
			AttemptTimeout: attemptTimeout,
			ConfirmIntent:  confirmIntent,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      cbEnabled,
			Threshold:    cbThreshold,
			ResetTimeout: cbReset,
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY environment variable is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must list at least one origin")
	}
	if cfg.Reader.DefaultID != "" {
		if err := terminal.ValidateReaderID(cfg.Reader.DefaultID, cfg.Reader.IDPrefix); err != nil {
			return fmt.Errorf("invalid DEFAULT_READER_ID: %w", err)
		}
	}
	return nil
}
