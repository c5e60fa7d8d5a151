// Package llmtypes holds the provider configuration shared by the cmd layer
// and internal/llm, so neither imports the other.
package llmtypes

import "lab-notebook/notebook_go/pkg/logger"

// Provider identifies a reasoning-step backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogleAI  Provider = "googleai"
)

// Config holds everything needed to construct a model client. API keys come
// from the environment (OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY)
// unless set explicitly.
type Config struct {
	Provider    Provider
	ModelID     string
	Temperature float64
	APIKey      string
	BaseURL     string
	Logger      logger.ExtendedLogger
}

// DefaultModelFor returns the default model id for a provider.
func DefaultModelFor(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	case ProviderGoogleAI:
		return "gemini-1.5-pro"
	default:
		return "gpt-4o"
	}
}
