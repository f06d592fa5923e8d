package gemini

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/PipeOpsHQ/airos/llm"
)

func TestParseGeminiResponse_SkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: " {\"x\": 1} "},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     4,
			CandidatesTokenCount: 2,
			TotalTokenCount:      6,
		},
	}
	out, err := parseGeminiResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"x": 1}`, out.Text)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 6, out.Usage.TotalTokens)
}

func TestParseGeminiResponse_NoCandidates(t *testing.T) {
	_, err := parseGeminiResponse(nil)
	assert.Error(t, err)

	_, err = parseGeminiResponse(&genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReasonMessage: "blocked"},
	})
	assert.ErrorContains(t, err, "blocked")
}

func TestClientGenerate_AgainstFakeAPI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":true}"}]}}]}`))
	}))
	defer ts.Close()

	client, err := New(context.Background(), "g-key", WithModel("gemini-test"), WithBaseURL(ts.URL))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "fix", SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)
}

func TestClampInt32(t *testing.T) {
	assert.Equal(t, int32(0), clampInt32(-1))
	assert.Equal(t, int32(10), clampInt32(10))
	assert.Equal(t, int32(math.MaxInt32), clampInt32(math.MaxInt64))
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}
