package llm

import "context"

// Role 标识消息在对话中的角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall 是大模型请求执行的一次工具调用。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 描述对话中的一条消息。
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSpec 向大模型声明一个可调用的工具。Parameters 需能序列化为 JSON Schema。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any
}

// Request 描述发送给大模型的一轮推理上下文。
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Model 定义了调用大模型的统一接口。
type Model interface {
	Complete(ctx context.Context, req Request) (*Message, error)
}

// CloneMessages 复制消息列表，避免调用方共享底层切片。
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, msg := range in {
		out[i] = msg
		if msg.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall(nil), msg.ToolCalls...)
		}
	}
	return out
}
