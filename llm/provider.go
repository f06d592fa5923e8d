// Package llm defines the text-completion provider interface used to build
// repair capabilities.
package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("llm: provider returned no text")

type Request struct {
	Model           string `json:"model,omitempty"`
	SystemPrompt    string `json:"systemPrompt,omitempty"`
	Prompt          string `json:"prompt"`
	MaxOutputTokens int    `json:"maxOutputTokens,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
	TotalTokens  int `json:"totalTokens,omitempty"`
}

type Response struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
}

type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}
