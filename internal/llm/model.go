// Package llm wraps langchaingo models behind the scoring collaborator
// interface used by the workflow scheduler and services.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mcdaddytn/patentgraph/internal/config"
)

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// GenerateWithUsage generates text with a system prompt and reports token
// usage when the provider exposes it (zero otherwise).
func (m *Model) GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", 0, fmt.Errorf("generate: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", 0, fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	return choice.Content, usageFromGenerationInfo(choice.GenerationInfo), nil
}

// usageFromGenerationInfo pulls a total token count out of the provider's
// generation metadata. Providers use different key spellings.
func usageFromGenerationInfo(info map[string]any) int {
	if info == nil {
		return 0
	}
	for _, key := range []string{"TotalTokens", "total_tokens"} {
		if n, ok := asInt(info[key]); ok {
			return n
		}
	}
	total := 0
	for _, key := range []string{"PromptTokens", "prompt_tokens", "input_tokens", "CompletionTokens", "completion_tokens", "output_tokens"} {
		if n, ok := asInt(info[key]); ok {
			total += n
		}
	}
	return total
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
