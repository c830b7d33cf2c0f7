package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
)

const (
	// DefaultServiceName is attached to every log line
	DefaultServiceName = "terminal-gateway"

	// DefaultEnv is the deployment environment name
	DefaultEnv = "dev"

	// DefaultPort is the HTTP listen port
	DefaultPort = "3000"

	// DefaultAllowedOrigins is the CORS allow list used when none is configured
	DefaultAllowedOrigins = "http://localhost:3000"

	// DefaultStaticDir is the directory served at "/"
	DefaultStaticDir = "public"

	// DefaultReaderIDPrefix is the prefix every reader identifier must carry
	DefaultReaderIDPrefix = terminal.DefaultReaderPrefix

	// DefaultRetryBackoff is the fixed wait between reader timeout retries
	DefaultRetryBackoff = time.Second

	// DefaultConfirmIntent re-fetches the payment intent after a successful process
	DefaultConfirmIntent = true

	// DefaultCircuitBreakerEnabled defines whether the provider circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines consecutive transport failures before the breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerReset defines how long the breaker stays open
	DefaultCircuitBreakerReset = 30 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
)

// GetEnvPort returns the HTTP listen port from environment variables
func GetEnvPort() (string, error) {
	port := os.Getenv("PORT")
	if port == "" {
		return DefaultPort, nil
	}

	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("invalid PORT value: %s, must be a valid port number", port)
	}
	return port, nil
}

// GetEnvAllowedOrigins returns the CORS allow list from environment variables
func GetEnvAllowedOrigins() []string {
	raw := getEnvDefault("CORS_ALLOWED_ORIGINS", DefaultAllowedOrigins)
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a duration like 1s or 500ms", key, raw)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return d, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, raw)
	}
	return b, nil
}

func getEnvPositiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}
