package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAIProvider) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
	}, nil)
	return srv, p
}

func TestOpenAIProvider_Complete(t *testing.T) {
	t.Parallel()

	_, p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)
		assert.Equal(t, RoleUser, req.Messages[1].Role)
		assert.Equal(t, "what is attention?", req.Messages[1].Content)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "scaled dot product"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 4},
		})
	})

	resp, err := p.Complete(context.Background(), &CompletionRequest{
		Prompt:        "what is attention?",
		SystemMessage: "answer briefly",
	})
	require.NoError(t, err)
	assert.Equal(t, "scaled dot product", resp.Text)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 4, resp.OutputTokens)
}

func TestOpenAIProvider_HistoryOrdering(t *testing.T) {
	t.Parallel()

	_, p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 4)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)
		assert.Equal(t, RoleUser, req.Messages[1].Role)
		assert.Equal(t, RoleAssistant, req.Messages[2].Role)
		assert.Equal(t, "follow-up", req.Messages[3].Content)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		})
	})

	_, err := p.Complete(context.Background(), &CompletionRequest{
		Prompt:        "follow-up",
		SystemMessage: "sys",
		History: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: "reply"},
		},
	})
	require.NoError(t, err)
}

func TestOpenAIProvider_EmptyPrompt(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"}, nil)
	_, err := p.Complete(context.Background(), &CompletionRequest{Prompt: "   "})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrInvalidRequest, pe.Code)
	assert.False(t, pe.Retryable)
}

func TestOpenAIProvider_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		wantCode  ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, ErrForbidden, false},
		{"rate_limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"bad_request", http.StatusBadRequest, ErrInvalidRequest, false},
		{"server_error", http.StatusInternalServerError, ErrUpstreamError, true},
		{"gateway_timeout", http.StatusGatewayTimeout, ErrTimeout, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tc.name, tc.status)
			})

			_, err := p.Complete(context.Background(), &CompletionRequest{Prompt: "q"})
			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.wantCode, pe.Code)
			assert.Equal(t, tc.retryable, pe.Retryable)
			assert.Equal(t, tc.retryable, IsRetryable(err))
		})
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	t.Parallel()

	_, p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := p.Complete(context.Background(), &CompletionRequest{Prompt: "q"})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrUpstreamError, pe.Code)
}
