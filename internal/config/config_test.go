package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/certdossier/internal/certificate"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, certificate.ElectoralAuto, cfg.Electoral)
	assert.Equal(t, int64(32<<20), cfg.MaxDocumentBytes)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, certificate.DefaultUpstream, cfg.UpstreamBase)
	assert.False(t, cfg.UsesDatabase())
	assert.False(t, cfg.UsesQueue())
	assert.False(t, cfg.UsesArchive())
	assert.Equal(t, 1, cfg.Resilience().MaxAttempts)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CERTDOSSIER_ADDRESS", ":9999")
	t.Setenv("CERTDOSSIER_DATABASE_URL", "postgres://localhost/cert")
	t.Setenv("CERTDOSSIER_REDIS_ADDR", "localhost:6379")
	t.Setenv("CERTDOSSIER_FETCH_TIMEOUT", "5s")
	t.Setenv("CERTDOSSIER_FETCH_CONCURRENCY", "not-a-number")
	t.Setenv("CERTDOSSIER_ELECTORAL_SLOT", "separate")
	t.Setenv("CERTDOSSIER_BREAKER_ENABLED", "false")
	t.Setenv("CERTDOSSIER_BREAKER_MIN_REQUESTS", "3")
	t.Setenv("CERTDOSSIER_RATE_LIMIT", "2.5")
	t.Setenv("CERTDOSSIER_MAX_DOCUMENT_BYTES", "1024")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Address)
	assert.True(t, cfg.UsesDatabase())
	assert.True(t, cfg.UsesQueue())
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, defaultFetchConcurrency, cfg.FetchConcurrency)
	assert.Equal(t, certificate.ElectoralSeparate, cfg.Electoral)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, int64(1024), cfg.MaxDocumentBytes)

	rc := cfg.Resilience()
	assert.False(t, rc.BreakerEnabled)
	assert.Equal(t, uint32(3), rc.BreakerMinRequests)
}

func TestLoadRejectsUnknownElectoralMode(t *testing.T) {
	t.Setenv("CERTDOSSIER_ELECTORAL_SLOT", "both")
	_, err := Load()
	assert.Error(t, err)
}
