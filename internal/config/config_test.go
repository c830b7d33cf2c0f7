package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"STRIPE_SECRET_KEY", "PORT", "CORS_ALLOWED_ORIGINS", "READER_ID_PREFIX", "DEFAULT_READER_ID",
	"PROCESS_RETRY_BACKOFF", "PROCESS_ATTEMPT_TIMEOUT", "PROCESS_CONFIRM_INTENT",
	"PROVIDER_BREAKER_ENABLED", "PROVIDER_BREAKER_THRESHOLD", "PROVIDER_BREAKER_RESET",
	"STATIC_DIR", "SERVICE_NAME", "ENV", "LOG_FILE", "SHUTDOWN_TIMEOUT",
}

// clearEnv blanks every variable LoadConfig reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := LoadConfig(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "sk_test_123", cfg.StripeSecretKey)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, []string{DefaultAllowedOrigins}, cfg.AllowedOrigins)
	assert.Equal(t, "tmr_", cfg.Reader.IDPrefix)
	assert.Equal(t, time.Second, cfg.Process.Backoff)
	assert.Zero(t, cfg.Process.AttemptTimeout)
	assert.True(t, cfg.Process.ConfirmIntent)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, DefaultCircuitBreakerThreshold, cfg.CircuitBreaker.Threshold)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(noEnvFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://pos.example.com, https://admin.example.com ,")
	t.Setenv("PROCESS_RETRY_BACKOFF", "250ms")
	t.Setenv("PROCESS_ATTEMPT_TIMEOUT", "20s")
	t.Setenv("PROCESS_CONFIRM_INTENT", "false")
	t.Setenv("PROVIDER_BREAKER_ENABLED", "false")
	t.Setenv("DEFAULT_READER_ID", "tmr_FDOt2wlRZEdpd7")

	cfg, err := LoadConfig(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"https://pos.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Process.Backoff)
	assert.Equal(t, 20*time.Second, cfg.Process.AttemptTimeout)
	assert.False(t, cfg.Process.ConfirmIntent)
	assert.False(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, "tmr_FDOt2wlRZEdpd7", cfg.Reader.DefaultID)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"PORT":                       "http",
		"PROCESS_RETRY_BACKOFF":      "soon",
		"PROCESS_CONFIRM_INTENT":     "maybe",
		"PROVIDER_BREAKER_THRESHOLD": "0",
		"PROVIDER_BREAKER_RESET":     "0s",
		"DEFAULT_READER_ID":          "WSC513208022998",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
			t.Setenv(key, value)

			_, err := LoadConfig(noEnvFile(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set, even when empty.
	require.NoError(t, os.Unsetenv("STRIPE_SECRET_KEY"))
	require.NoError(t, os.Unsetenv("PORT"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STRIPE_SECRET_KEY=sk_test_file\nPORT=4242\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("STRIPE_SECRET_KEY")
		_ = os.Unsetenv("PORT")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_file", cfg.StripeSecretKey)
	assert.Equal(t, "4242", cfg.Port)
}
