package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "OnchainAgent/internal/errors"
	"OnchainAgent/internal/llm"
	"OnchainAgent/internal/memory"
	"OnchainAgent/internal/toolkit"
	"OnchainAgent/internal/wallet"
	"OnchainAgent/internal/web3"
	"OnchainAgent/pkg/logger"
)

const (
	// DefaultThreadID 是默认的会话标识。
	DefaultThreadID = "onchain-agent"

	// DefaultSystemPrompt 是智能体的默认人设。
	DefaultSystemPrompt = "You are a helpful agent that can interact onchain using your tools. " +
		"You control a wallet on an EVM network: you can read its details, check balances, " +
		"inspect the chain and transfer ETH. Before sending funds, check that the wallet can cover " +
		"the amount. If someone asks you to do something your tools cannot do, say so plainly and " +
		"suggest how it could be built on top of the existing tools."

	// DefaultInstruction 在请求未给出指令时驱动智能体。
	DefaultInstruction = "Be creative and do something interesting on the blockchain. " +
		"Choose an action or set of actions and execute it that highlights your abilities."
)

// Initializer 构建一次推理所需的执行器与会话配置。
type Initializer interface {
	Initialize(ctx context.Context) (Executor, SessionConfig, error)
}

// Factory 在每次请求时组装智能体。钱包凭据每次都从存储中重新读取。
type Factory struct {
	model             llm.Model
	store             wallet.Store
	chain             web3.Client
	networkID         string
	threadID          string
	systemPrompt      string
	maxIterations     int
	stepTimeout       time.Duration
	exportOnConstruct bool
	shared            memory.Checkpointer
	log               *slog.Logger
}

// FactoryOption 定义可选的 Factory 配置。
type FactoryOption func(*Factory)

// WithChain 指定工具使用的链客户端。
func WithChain(client web3.Client, networkID string) FactoryOption {
	return func(f *Factory) {
		f.chain = client
		f.networkID = networkID
	}
}

// WithThreadID 设置会话标识。
func WithThreadID(id string) FactoryOption {
	return func(f *Factory) {
		if strings.TrimSpace(id) != "" {
			f.threadID = id
		}
	}
}

// WithPersona 覆盖默认人设。
func WithPersona(prompt string) FactoryOption {
	return func(f *Factory) {
		if strings.TrimSpace(prompt) != "" {
			f.systemPrompt = prompt
		}
	}
}

// WithIterationLimit 设置单次推理的大模型调用上限。
func WithIterationLimit(n int) FactoryOption {
	return func(f *Factory) {
		f.maxIterations = n
	}
}

// WithModelTimeout 设置每次大模型调用的超时。
func WithModelTimeout(timeout time.Duration) FactoryOption {
	return func(f *Factory) {
		f.stepTimeout = timeout
	}
}

// WithExportOnConstruct 控制构建完成后是否把钱包凭据写回存储。
func WithExportOnConstruct(enabled bool) FactoryOption {
	return func(f *Factory) {
		f.exportOnConstruct = enabled
	}
}

// WithSharedMemory 让所有构建共享同一份会话记忆。
func WithSharedMemory(cp memory.Checkpointer) FactoryOption {
	return func(f *Factory) {
		f.shared = cp
	}
}

// NewFactory 创建 Factory。
func NewFactory(model llm.Model, store wallet.Store, opts ...FactoryOption) *Factory {
	f := &Factory{
		model:        model,
		store:        store,
		threadID:     DefaultThreadID,
		systemPrompt: DefaultSystemPrompt,
		log:          logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// ThreadID 返回会话标识。
func (f *Factory) ThreadID() string { return f.threadID }

// Initialize 实现 Initializer 接口。任何失败都以 CONSTRUCTION_FAILURE 返回，不做重试。
func (f *Factory) Initialize(ctx context.Context) (Executor, SessionConfig, error) {
	session := SessionConfig{ThreadID: f.threadID}

	// 验证必要的组件是否已配置。
	if f.model == nil {
		return nil, session, xerrors.New(xerrors.CodeConstructionFailure, "未配置大模型客户端")
	}
	if f.store == nil {
		return nil, session, xerrors.New(xerrors.CodeConstructionFailure, "未配置钱包凭据存储")
	}

	// 共享槽位的存储需要在读取到回写期间持锁。
	unlock, err := wallet.Acquire(ctx, f.store, session.ThreadID)
	if err != nil {
		return nil, session, xerrors.Wrap(xerrors.CodeConstructionFailure, err, "获取钱包凭据锁失败")
	}
	defer unlock()

	blob, _, err := f.store.Load(ctx, session.ThreadID)
	if err != nil {
		return nil, session, xerrors.Wrap(xerrors.CodeConstructionFailure, err, "读取钱包凭据失败")
	}

	wrapper, err := toolkit.NewWrapper(toolkit.Config{
		WalletData: blob,
		NetworkID:  f.networkID,
		Client:     f.chain,
	})
	if err != nil {
		return nil, session, xerrors.Wrap(xerrors.CodeConstructionFailure, err, "构建链上工具包失败")
	}

	checkpointer := f.shared
	if checkpointer == nil {
		checkpointer = memory.NewSaver()
	}

	executor := NewReactExecutor(f.model, wrapper.Tools(),
		WithSystemPrompt(f.systemPrompt),
		WithMaxIterations(f.maxIterations),
		WithStepTimeout(f.stepTimeout),
		WithCheckpointer(checkpointer),
	)

	if f.exportOnConstruct {
		exported, err := wrapper.ExportWallet()
		if err != nil {
			return nil, session, xerrors.Wrap(xerrors.CodeConstructionFailure, err, "导出钱包凭据失败")
		}
		if err := f.store.Save(ctx, session.ThreadID, exported); err != nil {
			return nil, session, xerrors.Wrap(xerrors.CodeConstructionFailure, err, "回写钱包凭据失败")
		}
		logger.Audit().Info("wallet exported",
			slog.String("thread_id", session.ThreadID),
			slog.String("wallet_id", wrapper.Wallet().ID()),
			slog.String("address", wrapper.Wallet().Address().Hex()))
	}

	f.log.Debug("智能体构建完成",
		slog.String("thread_id", session.ThreadID),
		slog.String("address", wrapper.Wallet().Address().Hex()))
	return executor, session, nil
}
