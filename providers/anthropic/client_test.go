package anthropic

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

func TestClientGenerate_JoinsTextBlocks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "repair me", req.Messages[0].Content[0].Text)

		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "{\"x\":"},
				{"type": "tool_use"},
				{"type": "text", "text": "1}\n"}
			],
			"usage": {"input_tokens": 9, "output_tokens": 3}
		}`))
	}))
	defer ts.Close()

	client, err := New(" ak-test ", WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), llm.Request{SystemPrompt: "sys", Prompt: "repair me"})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
