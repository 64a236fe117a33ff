package errors

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError("rate limited", nil), true},
		{"wrapped transient", fmt.Errorf("call: %w", NewTransientError("503", nil)), true},
		{"validation", NewValidationError("bad json"), false},
		{"external without cause", NewExternalError("401", nil), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net timeout", timeoutErr{}, true},
		{"external wrapping net timeout", NewExternalError("dial", timeoutErr{}), true},
		{"breaker open", NewBreakerOpenError("enrichment", time.Second), false},
		{"plain", fmt.Errorf("boom"), false},
		{"local limiter refusal", NewRateLimitedError("queue full", context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeNotFound, TypeOf(fmt.Errorf("wrap: %w", NewNotFoundError("drug"))))
	assert.Equal(t, ErrorTypeUnavailable, TypeOf(NewBreakerOpenError("related_drugs", time.Second)))
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
	assert.True(t, Is(NewValidationError("x"), ErrorTypeValidation))
	assert.False(t, Is(nil, ErrorTypeValidation))
}

func TestBreakerOpenError(t *testing.T) {
	err := NewBreakerOpenError("enrichment", 30*time.Second)
	assert.True(t, IsBreakerOpen(fmt.Errorf("wrapped: %w", err)))
	assert.Contains(t, err.Error(), "circuit open for enrichment")
	assert.Equal(t, 30*time.Second, err.RetryAfter)
}

func TestFromHTTPStatus(t *testing.T) {
	for _, status := range []int{408, 429, 500, 503} {
		assert.True(t, IsTransient(FromHTTPStatus("openfda", status, nil)), "status %d", status)
	}
	for _, status := range []int{400, 401, 403, 422} {
		err := FromHTTPStatus("anthropic", status, nil)
		assert.Equal(t, ErrorTypeExternal, err.Type)
		assert.False(t, IsTransient(err), "status %d", status)
	}
}
