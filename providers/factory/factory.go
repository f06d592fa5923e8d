// Package factory builds repair providers from environment configuration.
package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/PipeOpsHQ/airos/llm"
	"github.com/PipeOpsHQ/airos/medic"
	anthropicprov "github.com/PipeOpsHQ/airos/providers/anthropic"
	azureopenaiprov "github.com/PipeOpsHQ/airos/providers/azureopenai"
	geminiprov "github.com/PipeOpsHQ/airos/providers/gemini"
	ollamaprov "github.com/PipeOpsHQ/airos/providers/ollama"
	openaiprov "github.com/PipeOpsHQ/airos/providers/openai"
)

// ErrNoProvider is returned when no provider is selected and no provider
// key is present in the environment.
var ErrNoProvider = errors.New("no repair provider configured")

// autodetect lists the key variables checked, in order, when
// AIROS_REPAIR_PROVIDER is unset.
var autodetect = []struct {
	env      string
	provider string
}{
	{"OPENAI_API_KEY", "openai"},
	{"ANTHROPIC_API_KEY", "anthropic"},
	{"GEMINI_API_KEY", "gemini"},
	{"AZURE_OPENAI_API_KEY", "azureopenai"},
}

// FromEnv returns the provider named by AIROS_REPAIR_PROVIDER, or the first
// provider whose API key is set.
func FromEnv(ctx context.Context) (llm.Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("AIROS_REPAIR_PROVIDER")))
	if provider == "" {
		for _, candidate := range autodetect {
			if strings.TrimSpace(os.Getenv(candidate.env)) != "" {
				provider = candidate.provider
				break
			}
		}
	}

	switch provider {
	case "":
		return nil, ErrNoProvider

	case "openai":
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when AIROS_REPAIR_PROVIDER=openai")
		}
		model := getenv("OPENAI_MODEL", "gpt-4o-mini")
		baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

		opts := []openaiprov.Option{openaiprov.WithModel(model)}
		if baseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(baseURL))
		}
		return openaiprov.New(key, opts...)

	case "gemini":
		key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when AIROS_REPAIR_PROVIDER=gemini")
		}
		model := getenv("GEMINI_MODEL", "gemini-2.5-flash")
		return geminiprov.New(ctx, key, geminiprov.WithModel(model))

	case "anthropic":
		key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when AIROS_REPAIR_PROVIDER=anthropic")
		}
		model := getenv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest")
		baseURL := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))

		opts := []anthropicprov.Option{anthropicprov.WithModel(model)}
		if baseURL != "" {
			opts = append(opts, anthropicprov.WithBaseURL(baseURL))
		}
		return anthropicprov.New(key, opts...)

	case "ollama":
		model := getenv("OLLAMA_MODEL", "llama3.1:8b")
		baseURL := getenv("OLLAMA_BASE_URL", "http://127.0.0.1:11434")
		apiKey := strings.TrimSpace(os.Getenv("OLLAMA_API_KEY"))
		return ollamaprov.New(
			ollamaprov.WithModel(model),
			ollamaprov.WithBaseURL(baseURL),
			ollamaprov.WithAPIKey(apiKey),
		)

	case "azureopenai":
		apiKey := strings.TrimSpace(os.Getenv("AZURE_OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_API_KEY is required when AIROS_REPAIR_PROVIDER=azureopenai")
		}
		endpoint := strings.TrimSpace(os.Getenv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT is required when AIROS_REPAIR_PROVIDER=azureopenai")
		}
		deployment := strings.TrimSpace(os.Getenv("AZURE_OPENAI_DEPLOYMENT"))
		if deployment == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_DEPLOYMENT is required when AIROS_REPAIR_PROVIDER=azureopenai")
		}
		model := getenv("AZURE_OPENAI_MODEL", deployment)
		apiVersion := getenv("AZURE_OPENAI_API_VERSION", "2024-10-21")

		return azureopenaiprov.New(
			apiKey,
			azureopenaiprov.WithEndpoint(endpoint),
			azureopenaiprov.WithDeployment(deployment),
			azureopenaiprov.WithModel(model),
			azureopenaiprov.WithAPIVersion(apiVersion),
		)
	}

	return nil, fmt.Errorf("unsupported AIROS_REPAIR_PROVIDER %q (use openai, anthropic, gemini, ollama, or azureopenai)", provider)
}

// RepairFuncFromEnv is the default repair capability: FromEnv adapted with
// medic.FromProvider. AIROS_REPAIR_MAX_TOKENS caps the response length.
func RepairFuncFromEnv(ctx context.Context) (medic.RepairFunc, error) {
	p, err := FromEnv(ctx)
	if err != nil {
		return nil, err
	}
	maxTokens := 0
	if raw := strings.TrimSpace(os.Getenv("AIROS_REPAIR_MAX_TOKENS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid AIROS_REPAIR_MAX_TOKENS %q: %w", raw, err)
		}
		maxTokens = n
	}
	return medic.FromProvider(p, medic.WithMaxOutputTokens(maxTokens)), nil
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}
