package openai

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

func TestClientGenerate_RoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "fix this", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "{\"x\":1}"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`))
	}))
	defer ts.Close()

	client, err := New("sk-test", WithBaseURL(ts.URL+"/"), WithModel("gpt-test"), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), llm.Request{SystemPrompt: "sys", Prompt: "fix this"})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestClientGenerate_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client, err := New("sk-test", WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
