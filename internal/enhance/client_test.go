package enhance_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/enhance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-3.5-turbo",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "Clean text."}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
}`

func newClient(serverURL string) *enhance.Client {
	return enhance.NewClient(enhance.Options{
		APIKey:      "test-key",
		BaseURL:     serverURL + "/v1",
		Model:       "gpt-3.5-turbo",
		Temperature: 0.3,
		MaxTokens:   2000,
	})
}

func TestClient_Enhance_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-3.5-turbo", req.Model)
		assert.Equal(t, 2000, req.MaxTokens)

		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "Fix grammar.", req.Messages[0].Content)
			assert.Equal(t, "user", req.Messages[1].Role)
			assert.Equal(t, "Please process this transcribed text:\n\num so hello", req.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	text, err := newClient(server.URL).Enhance(context.Background(), "Fix grammar.", "um so hello")
	require.NoError(t, err)
	assert.Equal(t, "Clean text.", text)
}

func TestClient_Enhance_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit"}}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL).Enhance(context.Background(), "Fix grammar.", "text")
	require.ErrorIs(t, err, core.ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "Rate limit reached")
}

func TestClient_Enhance_NoChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL).Enhance(context.Background(), "Fix grammar.", "text")
	require.ErrorIs(t, err, enhance.ErrNoChoices)
}

func TestClient_Enhance_EmptyInstruction(t *testing.T) {
	t.Parallel()

	_, err := newClient("http://127.0.0.1:1").Enhance(context.Background(), "  ", "text")
	require.ErrorIs(t, err, core.ErrValidation)
}
