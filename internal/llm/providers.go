// Package llm constructs the reasoning-step model client for a configured
// provider. Everything above this package talks to llms.Model only, so the
// provider is swappable without touching the notebook core.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"lab-notebook/notebook_go/internal/llmtypes"
)

// InitializeModel creates an llms.Model for the configured provider.
func InitializeModel(ctx context.Context, config llmtypes.Config) (llms.Model, error) {
	if config.ModelID == "" {
		config.ModelID = llmtypes.DefaultModelFor(config.Provider)
	}

	var model llms.Model
	var err error
	switch config.Provider {
	case llmtypes.ProviderOpenAI:
		model, err = initializeOpenAI(config)
	case llmtypes.ProviderAnthropic:
		model, err = initializeAnthropic(config)
	case llmtypes.ProviderGoogleAI:
		model, err = initializeGoogleAI(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s model %q: %w", config.Provider, config.ModelID, err)
	}

	if config.Logger != nil {
		config.Logger.Infof("initialized %s model %s", config.Provider, config.ModelID)
	}
	return model, nil
}

func initializeOpenAI(config llmtypes.Config) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(config.ModelID)}
	if key := apiKey(config.APIKey, "OPENAI_API_KEY"); key != "" {
		opts = append(opts, openai.WithToken(key))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	return openai.New(opts...)
}

func initializeAnthropic(config llmtypes.Config) (llms.Model, error) {
	opts := []anthropic.Option{anthropic.WithModel(config.ModelID)}
	if key := apiKey(config.APIKey, "ANTHROPIC_API_KEY"); key != "" {
		opts = append(opts, anthropic.WithToken(key))
	}
	return anthropic.New(opts...)
}

func initializeGoogleAI(ctx context.Context, config llmtypes.Config) (llms.Model, error) {
	opts := []googleai.Option{googleai.WithDefaultModel(config.ModelID)}
	if key := apiKey(config.APIKey, "GOOGLE_API_KEY"); key != "" {
		opts = append(opts, googleai.WithAPIKey(key))
	}
	return googleai.New(ctx, opts...)
}

func apiKey(explicit, envVar string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(envVar)
}
