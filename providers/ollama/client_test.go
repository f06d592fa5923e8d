package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PipeOpsHQ/airos/llm"
)

func TestClientGenerate_OpenAICompatibleRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.Equal(t, 256, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "result"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer ts.Close()

	client, err := New(
		WithBaseURL(ts.URL),
		WithModel("llama3.2"),
		WithAPIKey("test-key"),
		WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), llm.Request{
		SystemPrompt:    "system",
		Prompt:          "hello",
		MaxOutputTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, "result", resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}

func TestClientGenerate_NoAuthHeaderWithoutKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer ts.Close()

	client, err := New(WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.Request{Prompt: "hello"})
	assert.ErrorContains(t, err, "no choices")
}
