package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	xerrors "OnchainAgent/internal/errors"
	"OnchainAgent/internal/llm"
	"OnchainAgent/internal/memory"
	"OnchainAgent/internal/toolkit"
	"OnchainAgent/pkg/logger"
)

// StepNode 标识产生执行记录的节点。
type StepNode string

const (
	// NodeAgent 表示大模型产生的消息。
	NodeAgent StepNode = "agent"
	// NodeTools 表示工具执行结果。
	NodeTools StepNode = "tools"
)

// StepRecord 是执行器产出的单步记录。
type StepRecord struct {
	Node     StepNode
	Messages []llm.Message
}

// Content 返回第一条消息的文本内容，没有消息时返回空字符串。
func (r StepRecord) Content() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].Content
}

// SessionConfig 描述一次执行所属的会话。
type SessionConfig struct {
	ThreadID string
}

// Executor 以惰性序列的形式驱动一次推理。调用方停止拉取时执行随之停止。
type Executor interface {
	Stream(ctx context.Context, input string, session SessionConfig) iter.Seq2[StepRecord, error]
}

// defaultMaxIterations 是单次推理中大模型调用次数的默认上限。
const defaultMaxIterations = 10

// ReactExecutor 在大模型与工具之间循环，直到大模型不再请求工具。
type ReactExecutor struct {
	model         llm.Model
	tools         map[string]toolkit.Tool
	specs         []llm.ToolSpec
	systemPrompt  string
	maxIterations int
	stepTimeout   time.Duration
	memory        memory.Checkpointer
	log           *slog.Logger
}

// ExecutorOption 定义可选的执行器配置。
type ExecutorOption func(*ReactExecutor)

// WithSystemPrompt 设置系统提示词。
func WithSystemPrompt(prompt string) ExecutorOption {
	return func(e *ReactExecutor) {
		e.systemPrompt = prompt
	}
}

// WithMaxIterations 设置大模型调用次数上限。
func WithMaxIterations(n int) ExecutorOption {
	return func(e *ReactExecutor) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithStepTimeout 为每次大模型调用设置超时。
func WithStepTimeout(timeout time.Duration) ExecutorOption {
	return func(e *ReactExecutor) {
		if timeout > 0 {
			e.stepTimeout = timeout
		}
	}
}

// WithCheckpointer 指定会话记忆。
func WithCheckpointer(cp memory.Checkpointer) ExecutorOption {
	return func(e *ReactExecutor) {
		if cp != nil {
			e.memory = cp
		}
	}
}

// NewReactExecutor 创建执行器。未指定记忆时使用新的内存记忆。
func NewReactExecutor(model llm.Model, tools []toolkit.Tool, opts ...ExecutorOption) *ReactExecutor {
	e := &ReactExecutor{
		model:         model,
		tools:         make(map[string]toolkit.Tool, len(tools)),
		maxIterations: defaultMaxIterations,
		log:           logger.Named("agent"),
	}
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		e.tools[tool.Name()] = tool
		e.specs = append(e.specs, llm.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.memory == nil {
		e.memory = memory.NewSaver()
	}
	return e
}

// Stream 实现 Executor 接口。
func (e *ReactExecutor) Stream(ctx context.Context, input string, session SessionConfig) iter.Seq2[StepRecord, error] {
	return func(yield func(StepRecord, error) bool) {
		// 校验输入与依赖。
		if e.model == nil {
			yield(StepRecord{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端"))
			return
		}
		if strings.TrimSpace(input) == "" {
			yield(StepRecord{}, xerrors.New(xerrors.CodeInvalidArgument, "指令不能为空"))
			return
		}

		// 恢复会话历史并追加本次指令。
		history, err := e.memory.Get(ctx, session.ThreadID)
		if err != nil {
			yield(StepRecord{}, xerrors.Wrap(xerrors.CodeStepFailure, err, "读取会话记忆失败"))
			return
		}
		history = append(history, llm.Message{Role: llm.RoleUser, Content: input})

		for i := 0; i < e.maxIterations; i++ {
			if err := ctx.Err(); err != nil {
				yield(StepRecord{}, xerrors.Wrap(xerrors.CodeStepFailure, err, "智能体执行已取消"))
				return
			}

			reply, err := e.complete(ctx, history)
			if err != nil {
				yield(StepRecord{}, err)
				return
			}
			history = append(history, reply)
			// 带工具调用的答复要等工具结果一并保存，否则历史中会留下没有响应的 tool_calls。
			if len(reply.ToolCalls) == 0 {
				e.checkpoint(ctx, session, history)
			}
			if !yield(StepRecord{Node: NodeAgent, Messages: []llm.Message{reply}}, nil) {
				return
			}
			if len(reply.ToolCalls) == 0 {
				return
			}

			results := e.runTools(ctx, reply.ToolCalls)
			history = append(history, results...)
			e.checkpoint(ctx, session, history)
			if !yield(StepRecord{Node: NodeTools, Messages: llm.CloneMessages(results)}, nil) {
				return
			}
		}

		yield(StepRecord{}, xerrors.New(xerrors.CodeStepFailure,
			fmt.Sprintf("超过最大迭代次数 %d，智能体未给出最终答复", e.maxIterations)))
	}
}

func (e *ReactExecutor) complete(ctx context.Context, history []llm.Message) (llm.Message, error) {
	callCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	reply, err := e.model.Complete(callCtx, llm.Request{
		System:   e.systemPrompt,
		Messages: llm.CloneMessages(history),
		Tools:    e.specs,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return llm.Message{}, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return llm.Message{}, xerrors.Wrap(xerrors.CodeStepFailure, err, "调用大模型失败")
	}
	if reply == nil {
		return llm.Message{}, xerrors.New(xerrors.CodeStepFailure, "大模型返回了空响应")
	}
	msg := *reply
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	return msg, nil
}

// runTools 依次执行工具调用。工具失败会写入工具消息，交由大模型处理。
func (e *ReactExecutor) runTools(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		content := e.invoke(ctx, call)
		results = append(results, llm.Message{
			Role:       llm.RoleTool,
			Name:       call.Name,
			ToolCallID: call.ID,
			Content:    content,
		})
	}
	return results
}

func (e *ReactExecutor) invoke(ctx context.Context, call llm.ToolCall) string {
	tool, ok := e.tools[call.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}
	started := time.Now()
	out, err := tool.Call(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		e.log.Warn("工具执行失败", slog.String("tool", call.Name), slog.Any("error", err))
		return "Error: " + err.Error()
	}
	e.log.Debug("工具执行完成", slog.String("tool", call.Name), slog.Duration("elapsed", time.Since(started)))
	return out
}

func (e *ReactExecutor) checkpoint(ctx context.Context, session SessionConfig, history []llm.Message) {
	if err := e.memory.Put(ctx, session.ThreadID, history); err != nil {
		e.log.Warn("保存会话记忆失败", slog.String("thread_id", session.ThreadID), slog.Any("error", err))
	}
}
