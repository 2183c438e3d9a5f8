package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"OnchainAgent/internal/agent"
	"OnchainAgent/internal/api"
	"OnchainAgent/internal/config"
	xerrors "OnchainAgent/internal/errors"
	"OnchainAgent/internal/eventbus"
	"OnchainAgent/internal/llm"
	"OnchainAgent/internal/llm/openai"
	"OnchainAgent/internal/memory"
	"OnchainAgent/internal/observability/alerting"
	"OnchainAgent/internal/observability/metrics"
	"OnchainAgent/internal/relay"
	"OnchainAgent/internal/runlog"
	"OnchainAgent/internal/storage/mysql"
	redisstore "OnchainAgent/internal/storage/redis"
	"OnchainAgent/internal/wallet"
	"OnchainAgent/internal/web3/provider"
	"OnchainAgent/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// serve 按配置装配全部组件并阻塞到 ctx 取消。
func serve(ctx context.Context, configPath, address string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Server.Address = address
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("agentd")
	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	model, err := createModel(cfg.LLM)
	if err != nil {
		return err
	}

	deps := &backends{cfg: cfg}
	defer deps.Close()

	factoryOpts := []agent.FactoryOption{
		agent.WithThreadID(cfg.Agent.ThreadID),
		agent.WithPersona(cfg.Agent.SystemPrompt),
		agent.WithIterationLimit(cfg.Agent.MaxIterations),
		agent.WithModelTimeout(cfg.LLM.Timeout),
		agent.WithExportOnConstruct(cfg.Wallet.ExportOnConstruct),
	}
	if cfg.Agent.ShareMemory {
		factoryOpts = append(factoryOpts, agent.WithSharedMemory(memory.NewSaver()))
	}

	if chainConfigured(cfg.Web3) {
		registry, err := provider.NewRegistry(ctx, cfg.Web3)
		if err != nil {
			return err
		}
		defer registry.Close()
		client, err := registry.DefaultClient()
		if err != nil {
			return err
		}
		factoryOpts = append(factoryOpts, agent.WithChain(client, registry.DefaultNetwork()))
		log.Info("已连接区块链节点", slog.String("chain", client.Name()), slog.Any("chains", registry.Chains()))
	} else {
		factoryOpts = append(factoryOpts, agent.WithChain(nil, cfg.Web3.NetworkID))
		log.Warn("未配置 RPC 端点，链上工具将返回错误")
	}

	store, err := deps.walletStore(ctx)
	if err != nil {
		return err
	}
	factory := agent.NewFactory(model, store, factoryOpts...)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	relayOpts := []relay.Option{
		relay.WithMetrics(m),
		relay.WithEmitInit(cfg.Stream.EmitInit),
		relay.WithDefaultInstruction(cfg.Agent.DefaultInstruction),
	}
	if cfg.Alerts.Enabled {
		relayOpts = append(relayOpts, relay.WithAlerts(newAlerts(cfg.Alerts)))
	}
	publisher, err := deps.publisher(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		relayOpts = append(relayOpts, relay.WithPublisher(publisher))
	}
	recorder, err := deps.recorder(ctx)
	if err != nil {
		return err
	}
	if recorder != nil {
		relayOpts = append(relayOpts, relay.WithRecorder(recorder))
	}
	r := relay.New(factory, relayOpts...)

	serverOpts := []api.Option{
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		api.WithAuthToken(cfg.Server.AuthToken),
	}
	if cfg.Server.AuthToken == "" {
		log.Warn("未配置 server.auth_token，任何可访问该端口的客户端都能驱动智能体发起转账")
	}
	if recorder != nil {
		serverOpts = append(serverOpts, api.WithRuns(recorder))
	}
	if m != nil {
		path := cfg.Metrics.Path
		if cfg.Metrics.Address != "" {
			path = ""
		}
		serverOpts = append(serverOpts, api.WithMetrics(m, path))
	}
	server := api.NewServer(cfg.Server.Address, r, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	if m != nil && cfg.Metrics.Address != "" {
		g.Go(func() error {
			log.Info("指标服务已启动", slog.String("address", cfg.Metrics.Address))
			return metrics.StartServer(gctx, cfg.Metrics.Address, cfg.Metrics.Path, m.Handler())
		})
	}
	return g.Wait()
}

func createModel(cfg config.LLMConfig) (llm.Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.Provider)
	}
}

func newAlerts(cfg config.AlertsConfig) *alerting.FanoutDispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	d := alerting.NewFanout(notifiers...)
	d.MinSeverity = xerrors.Severity(strings.ToLower(cfg.MinSeverity))
	return d
}

func chainConfigured(cfg config.Web3Config) bool {
	return strings.TrimSpace(cfg.RPCURL) != "" || strings.TrimSpace(cfg.ChainConfig) != ""
}

// backends 按需创建并复用外部存储连接，退出时统一关闭。
type backends struct {
	cfg     *config.Config
	redis   *goredis.Client
	closers []func() error
}

func (b *backends) redisClient(ctx context.Context) (*goredis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := redisstore.NewClient(ctx, redisstore.Config{
		Address:  b.cfg.Storage.Redis.Address,
		Password: b.cfg.Storage.Redis.Password,
		DB:       b.cfg.Storage.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	b.redis = client
	b.closers = append(b.closers, client.Close)
	return client, nil
}

func (b *backends) walletStore(ctx context.Context) (wallet.Store, error) {
	primary, err := b.namedWalletStore(ctx, b.cfg.Wallet.Store)
	if err != nil {
		return nil, err
	}
	if b.cfg.Wallet.Fallback == "" || b.cfg.Wallet.Fallback == b.cfg.Wallet.Store {
		return primary, nil
	}
	fallback, err := b.namedWalletStore(ctx, b.cfg.Wallet.Fallback)
	if err != nil {
		return nil, err
	}
	return wallet.NewLayered(primary, fallback), nil
}

func (b *backends) namedWalletStore(ctx context.Context, name string) (wallet.Store, error) {
	switch name {
	case "env":
		return wallet.NewEnvStore(b.cfg.Wallet.EnvVar), nil
	case "memory":
		return wallet.NewMemoryStore(), nil
	case "redis":
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return wallet.NewRedisStore(client, b.cfg.Wallet.RedisKeyPrefix)
	default:
		return nil, fmt.Errorf("不支持的钱包存储类型: %s", name)
	}
}

func (b *backends) publisher(ctx context.Context) (eventbus.Publisher, error) {
	var (
		p   eventbus.Publisher
		err error
	)
	switch b.cfg.Events.Driver {
	case "", "none":
		return nil, nil
	case "redis":
		client, cerr := b.redisClient(ctx)
		if cerr != nil {
			return nil, cerr
		}
		p, err = eventbus.NewRedisPublisher(client, b.cfg.Events.Channel, nil)
	case "rabbitmq":
		p, err = eventbus.NewRabbitMQPublisher(eventbus.RabbitMQConfig{
			URL:     b.cfg.Storage.RabbitMQ.URL,
			Queue:   b.cfg.Events.Queue,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("不支持的事件驱动: %s", b.cfg.Events.Driver)
	}
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, p.Close)
	return p, nil
}

func (b *backends) recorder(ctx context.Context) (runlog.Recorder, error) {
	var (
		rec runlog.Recorder
		err error
	)
	switch b.cfg.RunLog.Driver {
	case "", "none":
		return nil, nil
	case "file":
		rec, err = runlog.NewFileRecorder(b.cfg.Runtime.DataDir, b.cfg.RunLog.Capacity)
	case "mysql":
		rec, err = runlog.OpenMySQLRecorder(ctx, mysql.Config{
			DSN:             b.cfg.Storage.MySQL.DSN,
			MaxOpenConns:    b.cfg.Storage.MySQL.MaxOpenConns,
			MaxIdleConns:    b.cfg.Storage.MySQL.MaxIdleConns,
			ConnMaxLifetime: b.cfg.Storage.MySQL.ConnMaxLifetime,
		})
	default:
		return nil, fmt.Errorf("不支持的运行记录驱动: %s", b.cfg.RunLog.Driver)
	}
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, rec.Close)
	return rec, nil
}

// Close 逆序关闭已创建的连接。
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.L().Warn("关闭后端连接失败", slog.Any("error", err))
		}
	}
}
