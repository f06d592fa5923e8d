package medic

import (
	"context"
	"fmt"
	"strings"

	"github.com/PipeOpsHQ/airos/llm"
)

type providerConfig struct {
	model     string
	maxTokens int
}

type ProviderOption func(*providerConfig)

// WithModel overrides the provider's default model for repair calls.
func WithModel(model string) ProviderOption {
	return func(c *providerConfig) { c.model = strings.TrimSpace(model) }
}

func WithMaxOutputTokens(n int) ProviderOption {
	return func(c *providerConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// FromProvider adapts a text-completion provider into a RepairFunc.
func FromProvider(p llm.Provider, opts ...ProviderOption) RepairFunc {
	if p == nil {
		return nil
	}
	cfg := providerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := p.Generate(ctx, llm.Request{
			Model:           cfg.model,
			SystemPrompt:    SystemPrompt,
			Prompt:          prompt,
			MaxOutputTokens: cfg.maxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("%s repair call failed: %w", p.Name(), err)
		}
		if strings.TrimSpace(resp.Text) == "" {
			return "", fmt.Errorf("%s: %w", p.Name(), llm.ErrEmptyResponse)
		}
		return resp.Text, nil
	}
}
