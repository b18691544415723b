package provider

import (
	"context"
	"fmt"

	"github.com/fieldvoice/fieldvoice/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainAdapter backs an Adapter with a langchaingo chat model.
type LangchainAdapter struct {
	name  string
	model llms.Model
}

var _ Adapter = (*LangchainAdapter)(nil)

// NewOpenAI creates the OpenAI-backed adapter.
func NewOpenAI(cfg config.Config) (*LangchainAdapter, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	model, err := openai.New(
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.OpenAIModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return &LangchainAdapter{name: "openai", model: model}, nil
}

// NewAnthropic creates the Anthropic-backed adapter.
func NewAnthropic(cfg config.Config) (*LangchainAdapter, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("Anthropic API key required")
	}
	model, err := anthropic.New(
		anthropic.WithToken(cfg.AnthropicAPIKey),
		anthropic.WithModel(cfg.AnthropicModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return &LangchainAdapter{name: "anthropic", model: model}, nil
}

// NewOllama creates the local-Ollama-backed adapter.
func NewOllama(cfg config.Config) (*LangchainAdapter, error) {
	model, err := ollama.New(
		ollama.WithModel(cfg.OllamaModel),
		ollama.WithServerURL(cfg.OllamaHost),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &LangchainAdapter{name: "ollama", model: model}, nil
}

// Name returns the provider identifier.
func (a *LangchainAdapter) Name() string {
	return a.name
}

// Generate sends the prompt as a system+user message pair.
func (a *LangchainAdapter) Generate(ctx context.Context, prompt Prompt) (Generation, error) {
	user := prompt.User
	if ctxBlock := prompt.FlattenContext(); ctxBlock != "" {
		user = ctxBlock + "\n" + user
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt.System),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	response, err := a.model.GenerateContent(ctx, messages)
	if err != nil {
		return Generation{}, NewTransientError(fmt.Errorf("%s generate: %w", a.name, err))
	}
	if len(response.Choices) == 0 {
		return Generation{}, NewTransientError(fmt.Errorf("%s: no response choices", a.name))
	}

	text := response.Choices[0].Content
	return Generation{Text: text, Confidence: estimateConfidence(text)}, nil
}
