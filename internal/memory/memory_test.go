package memory

import (
	"context"
	"testing"

	"OnchainAgent/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaverIsolatesThreadsAndCopies(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_balance"}}},
	}
	require.NoError(t, saver.Put(ctx, "a", history))

	history[0].Content = "mutated"
	history[1].ToolCalls[0].Name = "mutated"

	got, err := saver.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, "get_balance", got[1].ToolCalls[0].Name)

	got[0].Content = "changed"
	again, _ := saver.Get(ctx, "a")
	assert.Equal(t, "hi", again[0].Content)

	empty, err := saver.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 1, saver.Threads())
}
