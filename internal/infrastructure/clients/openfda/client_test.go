package openfda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaCurry/prescriber-point-sub001/internal/adapters/cache"
	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

const lipitorLabel = `{"meta":{},"results":[{"set_id":"abc","openfda":{"brand_name":["Lipitor"],"product_ndc":["0071-0155"]}}]}`

func newTestServer(t *testing.T, calls *int32, status int, body string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, labelPath, r.URL.Path)
		assert.Equal(t, `openfda.product_ndc:"0071-0155"`, r.URL.Query().Get("search"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewClient(&config.OpenFDAConfig{BaseURL: server.URL, APIKey: "key", Timeout: time.Second})
}

func TestFetchLabel(t *testing.T) {
	ctx := context.Background()

	t.Run("returns first result", func(t *testing.T) {
		var calls int32
		client := newTestServer(t, &calls, http.StatusOK, lipitorLabel)

		label, err := client.FetchLabel(ctx, "0071-0155")
		require.NoError(t, err)
		assert.Equal(t, "0071-0155", label.ExternalID)
		assert.JSONEq(t, `{"set_id":"abc","openfda":{"brand_name":["Lipitor"],"product_ndc":["0071-0155"]}}`, string(label.Body))
		assert.False(t, label.FetchedAt.IsZero())
	})

	t.Run("404 is not found", func(t *testing.T) {
		var calls int32
		client := newTestServer(t, &calls, http.StatusNotFound, `{"error":{"code":"NOT_FOUND"}}`)

		_, err := client.FetchLabel(ctx, "0071-0155")
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("5xx is transient", func(t *testing.T) {
		var calls int32
		client := newTestServer(t, &calls, http.StatusBadGateway, "bad gateway")

		_, err := client.FetchLabel(ctx, "0071-0155")
		assert.True(t, apperrors.IsTransient(err))
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		client := NewClient(&config.OpenFDAConfig{})
		_, err := client.FetchLabel(ctx, " ")
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
	})
}

func TestCachedLabelSource(t *testing.T) {
	ctx := context.Background()
	var calls int32
	client := newTestServer(t, &calls, http.StatusOK, lipitorLabel)
	store := cache.NewMemoryAdapter()
	source := NewCachedLabelSource(client, store, time.Hour)

	first, err := source.FetchLabel(ctx, "0071-0155")
	require.NoError(t, err)
	second, err := source.FetchLabel(ctx, "0071-0155")
	require.NoError(t, err)
	assert.JSONEq(t, string(first.Body), string(second.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, source.InvalidateLabel(ctx, "0071-0155"))
	_, err = source.FetchLabel(ctx, "0071-0155")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	require.NoError(t, source.InvalidateAllLabels(ctx))
	assert.Equal(t, 0, store.Len())
}
