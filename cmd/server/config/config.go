package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Idempotency backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// HTTPConfig holds the inbound API settings. A zero rate limit interval
// disables inbound rate limiting.
type HTTPConfig struct {
	Addr              string
	MaxBodyBytes      int64
	RateLimitInterval time.Duration
	RateLimitBurst    int
}

// DownstreamConfig selects between HTTP adapters and in-process stubs.
type DownstreamConfig struct {
	UseHTTPAdapters  bool
	InventoryBaseURL string
	PaymentsBaseURL  string
}

// StorageConfig holds database and idempotency settings.
type StorageConfig struct {
	DatabaseURL        string
	IdempotencyBackend string
	IdempotencyWait    time.Duration
	IdempotencyPoll    time.Duration
	// IdempotencyTTL expires Redis records when positive. Zero keeps them.
	IdempotencyTTL time.Duration
}

// RedisConfig holds Redis connection and behavior settings.
type RedisConfig struct {
	URL                string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MinIdleConns       *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	EnableOTel         bool
	TLSConfig          *tls.Config
}

// KafkaConfig holds order event publishing settings. No brokers disables
// publishing to Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// GRPCConfig holds the gRPC health server settings. An empty Addr disables
// the server.
type GRPCConfig struct {
	Addr              string
	HealthInterval    time.Duration
	RateLimitInterval time.Duration
	RateLimitBurst    int
	Reflection        bool
}

// ObservabilityConfig holds the HTTP address for the metrics endpoint. An
// empty Addr disables it.
type ObservabilityConfig struct {
	Addr string
}

// LoadHTTP reads inbound API settings from env.
func LoadHTTP() (HTTPConfig, error) {
	cfg := HTTPConfig{Addr: stringOr("HTTP_ADDR", ":8000")}

	var err error
	if cfg.MaxBodyBytes, err = int64Or("API_MAX_BYTES", 1<<20); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval, err = durationOr("HTTP_RATE_LIMIT_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = intOr("HTTP_RATE_LIMIT_BURST", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval > 0 && cfg.RateLimitBurst == 0 {
		return cfg, errors.New("HTTP_RATE_LIMIT_BURST is required when HTTP_RATE_LIMIT_INTERVAL is set")
	}
	return cfg, nil
}

// LoadDownstream reads the inventory and payments adapter selection from env.
func LoadDownstream() (DownstreamConfig, error) {
	cfg := DownstreamConfig{
		InventoryBaseURL: strings.TrimSpace(os.Getenv("INVENTORY_BASE_URL")),
		PaymentsBaseURL:  strings.TrimSpace(os.Getenv("PAYMENTS_BASE_URL")),
	}
	use, err := optionalBool("USE_HTTP_ADAPTERS")
	if err != nil {
		return cfg, err
	}
	cfg.UseHTTPAdapters = true
	if use != nil {
		cfg.UseHTTPAdapters = *use
	}
	return cfg, nil
}

// LoadStorage reads database and idempotency settings from env. The backend
// defaults to postgres when DATABASE_URL is set and memory otherwise.
func LoadStorage() (StorageConfig, error) {
	cfg := StorageConfig{
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		IdempotencyBackend: strings.ToLower(strings.TrimSpace(os.Getenv("IDEMPOTENCY_BACKEND"))),
	}
	if cfg.IdempotencyBackend == "" {
		cfg.IdempotencyBackend = BackendMemory
		if cfg.DatabaseURL != "" {
			cfg.IdempotencyBackend = BackendPostgres
		}
	}

	switch cfg.IdempotencyBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required for the postgres idempotency backend")
		}
	default:
		return cfg, fmt.Errorf("IDEMPOTENCY_BACKEND: unknown backend %q", cfg.IdempotencyBackend)
	}

	var err error
	if cfg.IdempotencyWait, err = durationOr("IDEMPOTENCY_WAIT", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.IdempotencyPoll, err = durationOr("IDEMPOTENCY_POLL_INTERVAL", 50*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.IdempotencyTTL, err = durationOr("IDEMPOTENCY_TTL", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadRedis reads Redis config from env.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{}

	url, err := requiredString("REDIS_URL")
	if err != nil {
		return cfg, err
	}
	cfg.URL = url

	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}

	if cfg.HealthcheckTimeout, err = durationOr("REDIS_HEALTHCHECK_TIMEOUT", 2*time.Second); err != nil {
		return cfg, err
	}

	otel, err := optionalBool("REDIS_OTEL")
	if err != nil {
		return cfg, err
	}
	cfg.EnableOTel = otel != nil && *otel

	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadKafka reads order event publishing settings from env.
func LoadKafka() KafkaConfig {
	cfg := KafkaConfig{Topic: stringOr("KAFKA_ORDER_TOPIC", "order.events")}
	for _, broker := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.Brokers = append(cfg.Brokers, broker)
		}
	}
	return cfg
}

// LoadGRPC reads gRPC health server settings from env.
func LoadGRPC() (GRPCConfig, error) {
	cfg := GRPCConfig{
		Addr:       strings.TrimSpace(os.Getenv("GRPC_ADDR")),
		Reflection: strings.TrimSpace(os.Getenv("APP_ENV")) != "production",
	}

	var err error
	if cfg.HealthInterval, err = durationOr("GRPC_HEALTH_INTERVAL", time.Second); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval, err = durationOr("GRPC_RATE_LIMIT_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = intOr("GRPC_RATE_LIMIT_BURST", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadObservability reads the metrics HTTP server address from env.
func LoadObservability() ObservabilityConfig {
	return ObservabilityConfig{Addr: strings.TrimSpace(os.Getenv("OBS_ADDR"))}
}

// LogLevel returns LOG_LEVEL, defaulting to info.
func LogLevel() string {
	return stringOr("LOG_LEVEL", "info")
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func stringOr(name, def string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return def
}

func durationOr(name string, def time.Duration) (time.Duration, error) {
	val, err := optionalDuration(name)
	if err != nil || val == nil {
		return def, err
	}
	return *val, nil
}

func intOr(name string, def int) (int, error) {
	val, err := optionalInt(name)
	if err != nil || val == nil {
		return def, err
	}
	return *val, nil
}

func int64Or(name string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalBool(name string) (*bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}
