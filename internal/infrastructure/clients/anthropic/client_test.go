package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.GenerationConfig{
		AnthropicAPIKey: "test-key",
		AnthropicModel:  "claude-test",
		AnthropicURL:    server.URL,
		Timeout:         2 * time.Second,
		MaxTokens:       500,
		Temperature:     0.3,
		RateLimitRPM:    -1,
	})
	require.NoError(t, err)
	return client
}

var lipitor = entities.GenerationRequest{
	Type: entities.ContentTypeEnrichment,
	Drug: &entities.DrugRecord{BrandName: "Lipitor", GenericName: "atorvastatin"},
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(&config.GenerationConfig{})
	assert.Error(t, err)
}

func TestGenerate_ReturnsText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.EqualValues(t, 500, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"title\":\"Lipitor\"}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	})

	out, err := client.Generate(context.Background(), lipitor)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Lipitor"}`, out.Text)
	assert.Equal(t, "anthropic", out.Provider)
	assert.Equal(t, "claude-test", out.Model)
}

func TestGenerate_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"throttled", http.StatusTooManyRequests, true},
		{"overloaded", 529, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
			})

			_, err := client.Generate(context.Background(), lipitor)
			require.Error(t, err)
			assert.Equal(t, tt.transient, apperrors.IsTransient(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "sdk retries must be disabled")
		})
	}
}

func TestGenerate_UnknownTypeNeverCallsProvider(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider should not be called")
	})

	_, err := client.Generate(context.Background(), entities.GenerationRequest{Type: "poem", Drug: lipitor.Drug})
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
}

func TestGenerate_LimiterBacklogDoesNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent while the limiter is drained")
	})
	client.limiter = newLimiter(1, 1)
	require.True(t, client.limiter.Allow())

	cb := breaker.New("enrichment", breaker.Settings{FailureThreshold: 1, Cooldown: time.Minute})
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := breaker.Execute(ctx, cb, func(ctx context.Context) (*entities.GeneratedOutput, error) {
			return client.Generate(ctx, lipitor)
		})
		cancel()

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeRateLimited))
		assert.False(t, apperrors.IsTransient(err))
	}
	assert.Equal(t, breaker.StateClosed, cb.State())
}
