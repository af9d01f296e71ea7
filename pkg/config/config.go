// Package config loads and persists per-project configuration from the
// .codewright directory, plus encrypted secret storage. Configuration is
// an explicit value passed through the call chain; there is no global
// instance.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProjectDirName is the per-project dot directory everything durable
// lives under.
const ProjectDirName = ".codewright"

const configFileName = "config.json"

// CurrentSchemaVersion tracks the config file layout.
const CurrentSchemaVersion = 1

// Provider identifiers for model routing.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// API key environment variable names per provider.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GEMINI_API_KEY"
)

// AgentConfig holds model selection and retry budgets for the pipeline
// collaborators.
type AgentConfig struct {
	// PlannerModel produces the task list.
	PlannerModel string `json:"planner_model"`
	// GeneratorModel produces code for each task.
	GeneratorModel string `json:"generator_model"`
	// ReviewerModel reviews generated changes.
	ReviewerModel string `json:"reviewer_model"`
	// MaxReviewRetries bounds review-feedback regeneration loops per
	// task.
	MaxReviewRetries int `json:"max_review_retries"`
	// MaxTokens caps completion output size.
	MaxTokens int `json:"max_tokens"`
	// Temperature for generation requests.
	Temperature float32 `json:"temperature"`
	// OllamaHost is used when a model routes to the local provider.
	OllamaHost string `json:"ollama_host,omitempty"`
}

// MetricsConfig controls the optional Prometheus integration.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	// ListenAddr serves the /metrics endpoint when set.
	ListenAddr string `json:"listen_addr,omitempty"`
	// PrometheusURL enables run-summary queries against a Prometheus
	// server.
	PrometheusURL string `json:"prometheus_url,omitempty"`
}

// Config is the full project configuration.
type Config struct {
	SchemaVersion  int           `json:"schema_version"`
	Agents         AgentConfig   `json:"agents"`
	Metrics        MetricsConfig `json:"metrics"`
	NonInteractive bool          `json:"non_interactive"`
	CreatedAt      time.Time     `json:"created_at,omitzero"`
}

// DefaultConfig returns the configuration used when no config file
// exists yet.
func DefaultConfig() Config {
	return Config{
		SchemaVersion: CurrentSchemaVersion,
		Agents: AgentConfig{
			PlannerModel:     "claude-sonnet-4-20250514",
			GeneratorModel:   "claude-sonnet-4-20250514",
			ReviewerModel:    "claude-sonnet-4-20250514",
			MaxReviewRetries: 3,
			MaxTokens:        8192,
			Temperature:      0.2,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// ConfigPath returns the config file location for a project root.
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ProjectDirName, configFileName)
}

// Load reads the project config, applying defaults for a missing file.
// A present but unparseable file is an error: unlike the consent store,
// silently discarding explicit configuration would change behavior.
func Load(projectRoot string) (Config, error) {
	data, err := os.ReadFile(ConfigPath(projectRoot))
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.SchemaVersion > CurrentSchemaVersion {
		return Config{}, fmt.Errorf("config schema version %d is newer than supported version %d", cfg.SchemaVersion, CurrentSchemaVersion)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config atomically under the project dot directory.
func Save(projectRoot string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.SchemaVersion = CurrentSchemaVersion

	dir := filepath.Join(projectRoot, ProjectDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", ProjectDirName, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path := ConfigPath(projectRoot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// Validate checks config invariants.
func (c Config) Validate() error {
	if c.Agents.MaxReviewRetries < 0 {
		return fmt.Errorf("max_review_retries must be non-negative, got %d", c.Agents.MaxReviewRetries)
	}
	if c.Agents.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.Agents.MaxTokens)
	}
	for _, model := range []string{c.Agents.PlannerModel, c.Agents.GeneratorModel, c.Agents.ReviewerModel} {
		if model == "" {
			return fmt.Errorf("agent models must not be empty")
		}
	}
	return nil
}

// ProviderForModel routes a model name to its provider by prefix.
// Anything unrecognized is assumed to be a local Ollama model.
func ProviderForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "gpt") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "gemini"):
		return ProviderGoogle
	default:
		return ProviderOllama
	}
}

// APIKeyEnvForProvider returns the environment variable holding the
// provider's API key. Empty for providers that need none.
func APIKeyEnvForProvider(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderGoogle:
		return EnvGoogleAPIKey
	default:
		return ""
	}
}
