package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext_UsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf).With().Str("request_id", "req-1").Logger())

	LoggerFromContext(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestLoggerFromContext_FallsBackToGlobal(t *testing.T) {
	assert.NotNil(t, LoggerFromContext(context.Background()))
}

func TestInitMetrics_NoopProvider(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	RecordEnrichmentOutcome(ctx, m, "generated", false)
	RecordBreakerTransition(ctx, m, "enrichment", "closed", "open")
	RecordGeneration(ctx, m, "anthropic", "enrichment", 120*time.Millisecond, nil)
	RecordConfidence(ctx, m, 0.82, true)
	RecordRequestMetric(ctx, m, "GET", "/drugs/{slug}", 200, time.Millisecond)

	RecordEnrichmentOutcome(ctx, nil, "failed", true)
}
