package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/shopping-helper/internal/common"
)

func TestAnthropicClient_Complete(t *testing.T) {
	t.Run("joins text blocks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
			assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Here: "},{"type":"text","text":"[]"}]}`))
		}))
		defer server.Close()

		client, err := newAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		out, err := client.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "Here: []", out)
	})

	t.Run("rate limited response is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client, err := newAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), "prompt")
		require.Error(t, err)
		rec := common.Classify(err, common.ErrorContext{})
		assert.Equal(t, common.KindRateLimit, rec.Kind)
		assert.True(t, rec.Retryable)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := newAnthropicClient(Config{})
		assert.Error(t, err)
	})
}
