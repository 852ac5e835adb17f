package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmhunter/internal/resilience"
)

func TestChatCompletion_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, ReasonerModel, body["model"])
		assert.InDelta(t, 0.3, body["temperature"], 0.0001)
		assert.EqualValues(t, 4096, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "deepseek-reasoner",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"icp_score\": 82}"}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 40}
		}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:       ReasonerModel,
		Messages:    []Message{{Role: "system", Content: "ICP"}, {Role: "user", Content: "score"}},
		Temperature: 0.3,
		MaxTokens:   4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "cmpl-1", resp.ID)
	assert.Equal(t, `{"icp_score": 82}`, resp.Content)
	assert.Equal(t, 120, resp.Usage.PromptTokens)
	assert.Equal(t, 40, resp.Usage.CompletionTokens)
}

func TestChatCompletion_DefaultModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, ChatModel, body["model"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestChatCompletion_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestChatCompletion_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"message": "nope", "type": "invalid_request_error"}}`)) //nolint:errcheck
			}))
			defer srv.Close()

			c := NewClient("sk-test", WithBaseURL(srv.URL))
			_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "deepseek: chat completion")
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestLogUsage_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Usage{PromptTokens: 1, CompletionTokens: 2}.LogUsage(ChatModel, "extraction")
	})
}
