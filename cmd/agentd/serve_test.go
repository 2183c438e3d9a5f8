package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"OnchainAgent/internal/config"
	"OnchainAgent/internal/eventbus"
	"OnchainAgent/internal/runlog"
	"OnchainAgent/internal/wallet"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Runtime.DataDir = t.TempDir()
	return cfg
}

func TestCreateModel(t *testing.T) {
	cfg := loadConfig(t)
	model, err := createModel(cfg.LLM)
	require.NoError(t, err)
	assert.NotNil(t, model)

	cfg.LLM.Provider = "python_bridge"
	_, err = createModel(cfg.LLM)
	assert.Error(t, err)

	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	_, err = createModel(cfg.LLM)
	assert.Error(t, err)
}

func TestChainConfigured(t *testing.T) {
	assert.False(t, chainConfigured(config.Web3Config{}))
	assert.True(t, chainConfigured(config.Web3Config{RPCURL: "http://127.0.0.1:8545"}))
	assert.True(t, chainConfigured(config.Web3Config{ChainConfig: "chains.yaml"}))
}

func TestNewAlerts(t *testing.T) {
	d := newAlerts(config.AlertsConfig{Enabled: true, MinSeverity: "Critical"})
	assert.Equal(t, "critical", string(d.MinSeverity))
}

func TestBackendsWithRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := loadConfig(t)
	cfg.Storage.Redis.Address = srv.Addr()
	cfg.Wallet.Store = "redis"
	cfg.Wallet.Fallback = "memory"
	cfg.Events.Driver = "redis"

	deps := &backends{cfg: cfg}
	defer deps.Close()
	ctx := context.Background()

	store, err := deps.walletStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &wallet.Layered{}, store)
	require.NoError(t, store.Save(ctx, "thread", `{"seed":"00"}`))
	assert.True(t, srv.Exists(cfg.Wallet.RedisKeyPrefix+"thread"))

	pub, err := deps.publisher(ctx)
	require.NoError(t, err)
	assert.IsType(t, &eventbus.RedisPublisher{}, pub)
	assert.Len(t, deps.closers, 2, "redis client is shared")
}

func TestBackendsRedisFallback(t *testing.T) {
	srv := miniredis.RunT(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wallet:\n  store: memory\n  fallback: redis\nstorage:\n  redis:\n    address: "+srv.Addr()+"\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	deps := &backends{cfg: cfg}
	defer deps.Close()
	ctx := context.Background()
	require.NoError(t, srv.Set(cfg.Wallet.RedisKeyPrefix+"onchain-agent", `{"seed":"01"}`))

	store, err := deps.walletStore(ctx)
	require.NoError(t, err)
	blob, ok, err := store.Load(ctx, "onchain-agent")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"seed":"01"}`, blob)
}

func TestBackendsDefaults(t *testing.T) {
	cfg := loadConfig(t)
	deps := &backends{cfg: cfg}
	defer deps.Close()
	ctx := context.Background()

	store, err := deps.walletStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &wallet.EnvStore{}, store)

	pub, err := deps.publisher(ctx)
	require.NoError(t, err)
	assert.Nil(t, pub)

	rec, err := deps.recorder(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	cfg.RunLog.Driver = "file"
	rec, err = deps.recorder(ctx)
	require.NoError(t, err)
	assert.IsType(t, &runlog.FileRecorder{}, rec)
	require.NoError(t, rec.Record(ctx, runlog.Run{ID: "r1", Status: runlog.StatusCompleted}))
	assert.FileExists(t, filepath.Join(cfg.Runtime.DataDir, "runs.log"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--env-file", ""})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AGENTD_DOTENV_CHECK=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AGENTD_DOTENV_CHECK") })
	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("AGENTD_DOTENV_CHECK"))
}
