package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8108", cfg.Typesense.URL)
	assert.Equal(t, "anthropic", cfg.Generation.Provider)
	assert.Equal(t, 1000, cfg.Generation.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Generation.Temperature, 1e-9)
	assert.InDelta(t, 0.7, cfg.Enrichment.PublishThreshold, 1e-9)
	assert.Equal(t, 7*24*time.Hour, cfg.Enrichment.ValidityWindow)
	assert.Equal(t, 24*time.Hour, cfg.OpenFDA.CacheTTL)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TYPESENSE_URL", "http://test-typesense:8108")
	t.Setenv("GENERATION_PROVIDER", "OpenAI")
	t.Setenv("ENRICHMENT_PUBLISH_THRESHOLD", "0.8")
	t.Setenv("BREAKER_COOLDOWN", "10s")
	t.Setenv("BREAKER_MAX_COOLDOWN", "1m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RETRY_BASE_DELAY", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://test-typesense:8108", cfg.Typesense.URL)
	assert.Equal(t, "openai", cfg.Generation.Provider)
	assert.InDelta(t, 0.8, cfg.Enrichment.PublishThreshold, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"publish out of range", map[string]string{"ENRICHMENT_PUBLISH_THRESHOLD": "1.5"}, "ENRICHMENT_PUBLISH_THRESHOLD"},
		{"accept above publish", map[string]string{"ENRICHMENT_ACCEPT_THRESHOLD": "0.9"}, "exceeds ENRICHMENT_PUBLISH_THRESHOLD"},
		{"max cooldown too short", map[string]string{"BREAKER_MAX_COOLDOWN": "1s"}, "BREAKER_MAX_COOLDOWN"},
		{"zero attempts", map[string]string{"RETRY_MAX_ATTEMPTS": "0"}, "RETRY_MAX_ATTEMPTS"},
		{"unknown provider", map[string]string{"GENERATION_PROVIDER": "cohere"}, "GENERATION_PROVIDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "drugs", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=drugs sslmode=disable", c.DatabaseDSN())
}
