package azureopenai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PipeOpsHQ/airos/llm"
)

const defaultAPIVersion = "2024-10-21"

type Client struct {
	apiKey     string
	endpoint   string
	deployment string
	model      string
	apiVersion string
	httpClient *http.Client
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

func WithDeployment(deployment string) Option {
	return func(c *Client) { c.deployment = deployment }
}

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithAPIVersion(apiVersion string) Option {
	return func(c *Client) { c.apiVersion = apiVersion }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_API_KEY is required")
	}
	c := &Client{
		apiKey:     apiKey,
		apiVersion: defaultAPIVersion,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if strings.TrimSpace(c.endpoint) == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT is required")
	}
	if strings.TrimSpace(c.deployment) == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_DEPLOYMENT is required")
	}
	if strings.TrimSpace(c.model) == "" {
		c.model = c.deployment
	}
	return c, nil
}

func (c *Client) Name() string { return "azureopenai" }

func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	payload := azureChatRequest{
		Model:    model,
		Messages: make([]azureChatMessage, 0, 2),
	}
	if req.MaxOutputTokens > 0 {
		payload.MaxTokens = req.MaxOutputTokens
	}
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, azureChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	payload.Messages = append(payload.Messages, azureChatMessage{Role: "user", Content: req.Prompt})

	raw, err := json.Marshal(payload)
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to marshal azure openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointForDeployment(), bytes.NewReader(raw))
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to create azure openai request: %w", err)
	}
	httpReq.Header.Set("api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return llm.Response{}, fmt.Errorf("azure openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to read azure openai response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return llm.Response{}, fmt.Errorf("azure openai API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp azureChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return llm.Response{}, fmt.Errorf("failed to decode azure openai response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("azure openai response had no choices")
	}

	out := llm.Response{Text: apiResp.Choices[0].Message.Content}
	if apiResp.Usage.TotalTokens > 0 {
		out.Usage = &llm.Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		}
	}
	return out, nil
}

func (c *Client) endpointForDeployment() string {
	deployment := url.PathEscape(c.deployment)
	version := url.QueryEscape(c.apiVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", c.endpoint, deployment, version)
}

type azureChatRequest struct {
	Model     string             `json:"model"`
	Messages  []azureChatMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens,omitempty"`
}

type azureChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type azureChatResponse struct {
	Choices []struct {
		Message azureChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var _ llm.Provider = (*Client)(nil)
