package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5328", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "env", cfg.Wallet.Store)
	assert.Equal(t, "CDP_WALLET_DATA", cfg.Wallet.EnvVar)
	assert.False(t, cfg.Wallet.ExportOnConstruct)
	assert.Equal(t, "onchain-agent", cfg.Agent.ThreadID)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.False(t, cfg.Stream.EmitInit)
	assert.Equal(t, "none", cfg.Events.Driver)
	assert.Equal(t, "agentd:events", cfg.Events.Channel)
	assert.Equal(t, 512, cfg.RunLog.Capacity)
	assert.Equal(t, []string{"stdout"}, cfg.Logging.OutputPaths)
	assert.Equal(t, "data", cfg.Runtime.DataDir)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.Server.AuthToken)
	assert.False(t, cfg.Alerts.Enabled)
	assert.Equal(t, "warning", cfg.Alerts.MinSeverity)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	content := `server:
  address: ":9000"
wallet:
  store: redis
  fallback: env
  export_on_construct: true
web3:
  chain_config: chains.yaml
runlog:
  driver: memory
logging:
  audit:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("AGENTD_AGENT_THREAD_ID", "thread-from-env")
	t.Setenv("AGENTD_STREAM_EMIT_INIT", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "redis", cfg.Wallet.Store)
	assert.Equal(t, "env", cfg.Wallet.Fallback)
	assert.True(t, cfg.Wallet.ExportOnConstruct)
	assert.Equal(t, "thread-from-env", cfg.Agent.ThreadID)
	assert.True(t, cfg.Stream.EmitInit)
	assert.Equal(t, filepath.Join(dir, "chains.yaml"), cfg.Web3.ChainConfig)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Runtime.DataDir)
	assert.Equal(t, filepath.Join(dir, "data", "audit.log"), cfg.Logging.Audit.Path)
	assert.Equal(t, "file", cfg.RunLog.Driver, "memory is an alias of file")
}

func TestLoadAcceptsRedisWalletFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wallet:\n  store: memory\n  fallback: redis\nrunlog:\n  driver: file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Wallet.Fallback)
	assert.Equal(t, "file", cfg.RunLog.Driver)
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runlog:\n  driver: mysql\nevents:\n  driver: kafka\nserver:\n  allowed_origins: [\"evil.example\"]\nalerts:\n  min_severity: loud\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.mysql.dsn")
	assert.Contains(t, err.Error(), "kafka")
	assert.Contains(t, err.Error(), "loud")
	assert.Contains(t, err.Error(), "evil.example")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
