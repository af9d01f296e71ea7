package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, 3, cfg.Agents.MaxReviewRetries)
	assert.NotEmpty(t, cfg.Agents.GeneratorModel)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Agents.MaxReviewRetries = 5
	cfg.Agents.GeneratorModel = "gpt-5"
	cfg.NonInteractive = true
	require.NoError(t, Save(root, cfg))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Agents.MaxReviewRetries)
	assert.Equal(t, "gpt-5", loaded.Agents.GeneratorModel)
	assert.True(t, loaded.NonInteractive)
}

func TestLoad_CorruptFileIsAnError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ProjectDirName), 0o755))
	require.NoError(t, os.WriteFile(ConfigPath(root), []byte("{nope"), 0o644))

	_, err := Load(root)
	assert.Error(t, err, "explicit configuration must not be silently discarded")
}

func TestLoad_NewerSchemaRejected(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ProjectDirName), 0o755))
	require.NoError(t, os.WriteFile(ConfigPath(root), []byte(`{"schema_version": 99, "agents": {"planner_model": "m", "generator_model": "m", "reviewer_model": "m", "max_review_retries": 1, "max_tokens": 100}}`), 0o644))

	_, err := Load(root)
	assert.ErrorContains(t, err, "schema version")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agents.MaxReviewRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Agents.MaxTokens = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Agents.ReviewerModel = ""
	assert.Error(t, cfg.Validate())
}

func TestProviderForModel(t *testing.T) {
	assert.Equal(t, ProviderAnthropic, ProviderForModel("claude-sonnet-4-20250514"))
	assert.Equal(t, ProviderOpenAI, ProviderForModel("gpt-5"))
	assert.Equal(t, ProviderOpenAI, ProviderForModel("o3-mini"))
	assert.Equal(t, ProviderGoogle, ProviderForModel("gemini-2.5-pro"))
	assert.Equal(t, ProviderOllama, ProviderForModel("qwen2.5-coder"))
}

func TestSecrets_RoundTrip(t *testing.T) {
	root := t.TempDir()
	original := map[string]string{
		EnvAnthropicAPIKey: "sk-ant-test",
		EnvOpenAIAPIKey:    "sk-test",
	}
	require.NoError(t, EncryptSecretsFile(root, "hunter2", original))
	assert.True(t, SecretsFileExists(root))

	secrets, err := DecryptSecretsFile(root, "hunter2")
	require.NoError(t, err)
	key, err := secrets.Get(EnvAnthropicAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", key)
}

func TestSecrets_WrongPassword(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EncryptSecretsFile(root, "correct", map[string]string{"A": "1"}))

	_, err := DecryptSecretsFile(root, "wrong")
	assert.Error(t, err)
}

func TestSecrets_EnvFallback(t *testing.T) {
	t.Setenv("CODEWRIGHT_TEST_SECRET", "from-env")

	var secrets *Secrets
	value, err := secrets.Get("CODEWRIGHT_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	_, err = secrets.Get("CODEWRIGHT_TEST_MISSING")
	assert.Error(t, err)
}
