// Package config reads the service configuration from CERTDOSSIER_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/certdossier/internal/certificate"
	"github.com/dharsanguruparan/certdossier/internal/resilience"
)

// Config represents runtime configuration shared by the server, the worker
// and the CLI.
type Config struct {
	Address         string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// DatabaseURL selects Postgres; empty keeps everything in memory.
	DatabaseURL string

	// RedisAddr selects the asynq queue; empty runs pipelines in-process.
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	QueueName         string
	WorkerConcurrency int
	MetricsAddress    string

	DocumentDir   string
	PublicBaseURL string
	UpstreamBase  string
	CatalogFile   string
	Electoral     certificate.ElectoralMode

	FetchTimeout        time.Duration
	FetchConcurrency    int
	FetchAttempts       int
	MaxDocumentBytes    int64
	RateLimit           float64
	RateBurst           int
	BreakerEnabled      bool
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
}

const (
	defaultAddress          = ":8080"
	defaultPublicBase       = "http://localhost:8080/files"
	defaultDocumentDir      = "./documents"
	defaultQueue            = "certificates"
	defaultWorkerCount      = 4
	defaultFetchTimeout     = 60 * time.Second
	defaultFetchConcurrency = 5
	defaultShutdownTimeout  = 15 * time.Second
	defaultMetricsAddress   = ":9091"
	defaultMaxDocumentBytes = 32 << 20
)

// Load reads configuration from environment variables falling back to
// defaults. Malformed numbers fall back too; an unknown electoral mode is an
// error.
func Load() (*Config, error) {
	breaker := resilience.DefaultConfig()
	cfg := &Config{
		Address:         readEnv("CERTDOSSIER_ADDRESS", defaultAddress),
		LogLevel:        readEnv("CERTDOSSIER_LOG_LEVEL", "info"),
		LogFormat:       readEnv("CERTDOSSIER_LOG_FORMAT", "json"),
		ShutdownTimeout: parseDuration("CERTDOSSIER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),

		DatabaseURL: readEnv("CERTDOSSIER_DATABASE_URL", ""),

		RedisAddr:         readEnv("CERTDOSSIER_REDIS_ADDR", ""),
		RedisPassword:     readEnv("CERTDOSSIER_REDIS_PASSWORD", ""),
		RedisDB:           parseInt("CERTDOSSIER_REDIS_DB", 0),
		QueueName:         readEnv("CERTDOSSIER_QUEUE", defaultQueue),
		WorkerConcurrency: parseInt("CERTDOSSIER_WORKERS", defaultWorkerCount),
		MetricsAddress:    readEnv("CERTDOSSIER_METRICS_ADDRESS", defaultMetricsAddress),

		DocumentDir:   readEnv("CERTDOSSIER_DOCUMENT_DIR", defaultDocumentDir),
		PublicBaseURL: readEnv("CERTDOSSIER_PUBLIC_BASE_URL", defaultPublicBase),
		UpstreamBase:  readEnv("CERTDOSSIER_UPSTREAM_BASE", certificate.DefaultUpstream),
		CatalogFile:   readEnv("CERTDOSSIER_CATALOG_FILE", ""),

		FetchTimeout:        parseDuration("CERTDOSSIER_FETCH_TIMEOUT", defaultFetchTimeout),
		FetchConcurrency:    parseInt("CERTDOSSIER_FETCH_CONCURRENCY", defaultFetchConcurrency),
		FetchAttempts:       parseInt("CERTDOSSIER_FETCH_ATTEMPTS", breaker.MaxAttempts),
		MaxDocumentBytes:    int64(parseInt("CERTDOSSIER_MAX_DOCUMENT_BYTES", defaultMaxDocumentBytes)),
		RateLimit:           parseFloat("CERTDOSSIER_RATE_LIMIT", 0),
		RateBurst:           parseInt("CERTDOSSIER_RATE_BURST", 1),
		BreakerEnabled:      parseBool("CERTDOSSIER_BREAKER_ENABLED", breaker.BreakerEnabled),
		BreakerMinRequests:  parseInt("CERTDOSSIER_BREAKER_MIN_REQUESTS", int(breaker.BreakerMinRequests)),
		BreakerFailureRatio: parseFloat("CERTDOSSIER_BREAKER_FAILURE_RATIO", breaker.BreakerFailureRatio),
		BreakerOpenTimeout:  parseDuration("CERTDOSSIER_BREAKER_OPEN_TIMEOUT", breaker.BreakerOpenTimeout),

		S3Endpoint:  readEnv("CERTDOSSIER_S3_ENDPOINT", ""),
		S3AccessKey: readEnv("CERTDOSSIER_S3_ACCESS_KEY", ""),
		S3SecretKey: readEnv("CERTDOSSIER_S3_SECRET_KEY", ""),
		S3Bucket:    readEnv("CERTDOSSIER_S3_BUCKET", "certdossier"),
		S3Region:    readEnv("CERTDOSSIER_S3_REGION", "us-east-1"),
		S3UseSSL:    parseBool("CERTDOSSIER_S3_USE_SSL", false),
	}
	mode, err := certificate.ParseElectoralMode(readEnv("CERTDOSSIER_ELECTORAL_SLOT", ""))
	if err != nil {
		return nil, fmt.Errorf("CERTDOSSIER_ELECTORAL_SLOT: %w", err)
	}
	cfg.Electoral = mode
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = defaultWorkerCount
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaultFetchConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return cfg, nil
}

// Resilience is the breaker configuration for upstream calls.
func (c *Config) Resilience() resilience.Config {
	rc := resilience.DefaultConfig()
	rc.MaxAttempts = c.FetchAttempts
	rc.BreakerEnabled = c.BreakerEnabled
	if c.BreakerMinRequests > 0 {
		rc.BreakerMinRequests = uint32(c.BreakerMinRequests)
	}
	rc.BreakerFailureRatio = c.BreakerFailureRatio
	rc.BreakerOpenTimeout = c.BreakerOpenTimeout
	return rc
}

// UsesDatabase reports whether Postgres is configured.
func (c *Config) UsesDatabase() bool { return c.DatabaseURL != "" }

// UsesQueue reports whether Redis is configured.
func (c *Config) UsesQueue() bool { return c.RedisAddr != "" }

// UsesArchive reports whether S3 archiving is configured.
func (c *Config) UsesArchive() bool { return c.S3Endpoint != "" }

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// Accepts inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
