package provider

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	fvconfig "github.com/fieldvoice/fieldvoice/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/bedrock"
)

// BedrockAdapter serves prompts through AWS Bedrock.
type BedrockAdapter struct {
	model   llms.Model
	modelID string
}

var _ Adapter = (*BedrockAdapter)(nil)

// NewBedrock creates the Bedrock-backed adapter using the ambient AWS
// credential chain.
func NewBedrock(ctx context.Context, cfg fvconfig.Config) (*BedrockAdapter, error) {
	if cfg.BedrockModel == "" {
		return nil, fmt.Errorf("bedrock model id required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)

	model, err := bedrock.New(
		bedrock.WithClient(client),
		bedrock.WithModel(cfg.BedrockModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create bedrock model: %w", err)
	}

	return &BedrockAdapter{model: model, modelID: cfg.BedrockModel}, nil
}

// Name returns the provider identifier.
func (a *BedrockAdapter) Name() string {
	return "bedrock"
}

// Generate sends the prompt as a system+user message pair.
func (a *BedrockAdapter) Generate(ctx context.Context, prompt Prompt) (Generation, error) {
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
		return Generation{}, NewTransientError(fmt.Errorf("bedrock generate: %w", err))
	}
	if len(response.Choices) == 0 {
		return Generation{}, NewTransientError(fmt.Errorf("bedrock: no response choices"))
	}

	text := response.Choices[0].Content
	return Generation{Text: text, Confidence: estimateConfidence(text)}, nil
}
