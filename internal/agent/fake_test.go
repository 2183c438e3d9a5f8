package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"OnchainAgent/internal/llm"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// scriptedModel replays canned replies and records every request.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []llm.Message
	err      error
	loop     bool
	requests []llm.Request
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (*llm.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.loop && len(m.replies) > 0 {
		reply := m.replies[0]
		return &reply, nil
	}
	if len(m.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &reply, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type stubTool struct {
	name string
	out  string
	err  error
	args []string
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub " + t.name }
func (t *stubTool) Parameters() *jsonschema.Definition {
	return &jsonschema.Definition{Type: jsonschema.Object}
}

func (t *stubTool) Call(_ context.Context, args json.RawMessage) (string, error) {
	t.args = append(t.args, string(args))
	return t.out, t.err
}

func toolCallReply(content string, calls ...llm.ToolCall) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls}
}
