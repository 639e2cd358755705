package resilience

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the outbound reliability settings shared by every dependency.
type Config struct {
	Timeout             time.Duration
	RetryMax            int
	RetryBackoffBase    time.Duration
	RetryBackoffCap     time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// DefaultConfig returns the settings used when no environment override is set.
func DefaultConfig() Config {
	return Config{
		Timeout:             3 * time.Second,
		RetryMax:            2,
		RetryBackoffBase:    200 * time.Millisecond,
		RetryBackoffCap:     2 * time.Second,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// LoadConfigFromEnv overlays environment overrides on DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.Timeout, err = durationOr("HTTP_TIMEOUT", cfg.Timeout); err != nil {
		return cfg, err
	}
	if cfg.RetryMax, err = intOr("HTTP_RETRY_MAX", cfg.RetryMax); err != nil {
		return cfg, err
	}
	if cfg.RetryBackoffBase, err = durationOr("HTTP_RETRY_BACKOFF_BASE", cfg.RetryBackoffBase); err != nil {
		return cfg, err
	}
	if cfg.RetryBackoffCap, err = durationOr("HTTP_RETRY_BACKOFF_CAP", cfg.RetryBackoffCap); err != nil {
		return cfg, err
	}
	if cfg.BreakerMaxFailures, err = intOr("CB_FAIL_THRESHOLD", cfg.BreakerMaxFailures); err != nil {
		return cfg, err
	}
	if cfg.BreakerResetTimeout, err = durationOr("CB_RESET_TIMEOUT", cfg.BreakerResetTimeout); err != nil {
		return cfg, err
	}
	if cfg.Timeout == 0 {
		return cfg, errors.New("HTTP_TIMEOUT must be > 0")
	}

	return cfg, nil
}

// RetryPolicy builds the retry policy described by the config.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.RetryMax,
		BaseDelay:  c.RetryBackoffBase,
		MaxDelay:   c.RetryBackoffCap,
	}
}

// Breaker builds a circuit breaker for the named dependency.
func (c Config) Breaker(name string, onChange func(name string, from, to State)) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:          name,
		MaxFailures:   c.BreakerMaxFailures,
		ResetTimeout:  c.BreakerResetTimeout,
		OnStateChange: onChange,
	})
}

func durationOr(name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}

func intOr(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}
