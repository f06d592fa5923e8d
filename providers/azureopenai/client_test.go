package azureopenai

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

func TestClientGenerate_MapsAzureRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-10-21", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		assert.Equal(t, "/openai/deployments/dep/chat/completions", r.URL.Path)

		var req azureChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "azure-result"}}],
			"usage": {"prompt_tokens": 8, "completion_tokens": 4, "total_tokens": 12}
		}`))
	}))
	defer ts.Close()

	client, err := New(
		"azure-key",
		WithEndpoint(ts.URL),
		WithDeployment("dep"),
		WithModel("gpt-4o-mini"),
		WithAPIVersion("2024-10-21"),
		WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "azure-result", resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestNew_RequiresConfiguration(t *testing.T) {
	_, err := New("")
	assert.Error(t, err, "expected missing api key error")

	_, err = New("k", WithEndpoint("http://example"))
	assert.Error(t, err, "expected missing deployment error")

	c, err := New("k", WithEndpoint("http://example/"), WithDeployment("dep"))
	require.NoError(t, err)
	assert.Equal(t, "dep", c.model)
}
