package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSender_Send(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(WebhookConfig{URL: server.URL})
	require.NoError(t, sender.Send(context.Background(), "subject", "body"))

	assert.Equal(t, "### subject\n\nbody", got.Text)
	assert.Equal(t, defaultUsername, got.Username)
	assert.Empty(t, got.IconURL)
}

func TestWebhookSender_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			err := NewWebhookSender(WebhookConfig{URL: server.URL}).Send(context.Background(), "s", "b")

			var sendErr *SendError
			require.True(t, errors.As(err, &sendErr))
			assert.Equal(t, tt.status, sendErr.Code)
			assert.Equal(t, tt.wantRetryable, sendErr.Retryable)
			assert.Contains(t, sendErr.Error(), "nope")
		})
	}
}

func TestWebhookSender_EmptyURL(t *testing.T) {
	err := NewWebhookSender(WebhookConfig{}).Send(context.Background(), "s", "b")

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.False(t, sendErr.Retryable)
}

func TestWebhookSender_UnreachableIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewWebhookSender(WebhookConfig{URL: url}).Send(context.Background(), "s", "b")

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.True(t, sendErr.Retryable)
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "http://short", maskURL("http://short"))
	masked := maskURL("https://chat.example.com/hooks/abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, "https://chat.example...qrstuvwxyz", masked)
}
