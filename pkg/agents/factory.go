package agents

import (
	"fmt"

	"codewright/pkg/config"
	"codewright/pkg/llm"
	"codewright/pkg/llm/anthropic"
	"codewright/pkg/llm/google"
	"codewright/pkg/llm/ollama"
	"codewright/pkg/llm/openai"
)

// NewClient constructs a provider client for the given model, wrapped
// with the standard retry middleware. API keys are resolved from the
// secrets store with environment fallback.
func NewClient(model string, secrets *config.Secrets, agentCfg config.AgentConfig) (llm.Client, error) {
	provider := config.ProviderForModel(model)

	apiKey, err := secrets.APIKeyForProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("resolving API key for %s model %s: %w", provider, model, err)
	}

	var base llm.Client
	switch provider {
	case config.ProviderAnthropic:
		base = anthropic.NewClient(apiKey, model)
	case config.ProviderOpenAI:
		base = openai.NewClient(apiKey, model)
	case config.ProviderGoogle:
		base = google.NewClient(apiKey, model)
	case config.ProviderOllama:
		base = ollama.NewClient(agentCfg.OllamaHost, model)
	default:
		return nil, fmt.Errorf("unknown provider %q for model %s", provider, model)
	}

	return llm.Chain(base, llm.RetryMiddleware(llm.DefaultRetryConfig)), nil
}
