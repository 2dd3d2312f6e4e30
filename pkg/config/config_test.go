package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15, cfg.Tunables.MaxIterations)
	assert.Equal(t, 5, cfg.Tunables.MaxWorkerIterations)
	assert.Equal(t, 20, cfg.Tunables.MaxMessagesForSupervisor)
	assert.Equal(t, 500, cfg.Tunables.MaxToolOutputLength)
	assert.Contains(t, cfg.Workers, "filesystem")
	assert.Contains(t, cfg.Workers, "system")
	assert.Contains(t, cfg.Workers, "researcher")
	assert.Contains(t, cfg.Workers, "code")
}

func TestValidateRejectsBadTunables(t *testing.T) {
	cfg := Default()
	cfg.Tunables.MaxIterations = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Tunables.RecursionLimit = 1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DBPath = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Workers["code"] = WorkerBinding{}
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
db_path: custom.db
supervisor:
  provider: openai
  model: gpt-5
tunables:
  max_iterations: 7
  max_worker_iterations: 3
  max_messages_for_supervisor: 10
  max_tool_output_length: 200
  recursion_limit: 50
  approval_timeout_seconds: 60
  checkpoint_retention_per_run: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.DBPath)
	assert.Equal(t, ProviderOpenAI, cfg.Supervisor.Provider)
	assert.Equal(t, "gpt-5", cfg.Supervisor.Model)
	assert.Equal(t, 7, cfg.Tunables.MaxIterations)
	// The workers key is absent from the file, so the default workers survive.
	assert.Contains(t, cfg.Workers, "filesystem")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default().DBPath, cfg.DBPath)
}

func TestCredentialFallsBackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")
	_, err := LoadConfig("")
	require.NoError(t, err)

	v, err := Credential(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "test-key-123", v)
}

func TestCredentialMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	credentialsMu.Lock()
	delete(credentials, ProviderOpenAI)
	credentialsMu.Unlock()

	_, err := Credential(ProviderOpenAI)
	assert.Error(t, err)
}

func TestCredentialOllamaNeedsNoKey(t *testing.T) {
	v, err := Credential(ProviderOllama)
	require.NoError(t, err)
	assert.Empty(t, v)
}
