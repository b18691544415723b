package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldvoice/fieldvoice/internal/config"
)

// Build constructs the ranked adapter list from configuration. Providers
// that cannot initialize (missing key, unreachable region) are skipped with
// a warning so a partially configured deployment still serves; an empty
// result is an error because the orchestrator would have nothing to race.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	adapters := make([]Adapter, 0, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		adapter, err := build(ctx, name, cfg)
		if err != nil {
			logger.Warn("skipping provider", "provider", name, "error", err)
			continue
		}
		Register(adapter)
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no usable providers in %v", cfg.ProviderOrder)
	}
	return adapters, nil
}

func build(ctx context.Context, name string, cfg config.Config) (Adapter, error) {
	switch name {
	case "openai":
		return NewOpenAI(cfg)
	case "anthropic":
		return NewAnthropic(cfg)
	case "ollama":
		return NewOllama(cfg)
	case "bedrock":
		return NewBedrock(ctx, cfg)
	case "canned":
		return NewCanned(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
