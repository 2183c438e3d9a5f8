// Package memory holds conversation checkpoints keyed by thread id. State
// lives only in process memory.
package memory

import (
	"context"
	"sync"

	"OnchainAgent/internal/llm"
)

// Checkpointer persists the message history of a conversation thread.
type Checkpointer interface {
	Get(ctx context.Context, threadID string) ([]llm.Message, error)
	Put(ctx context.Context, threadID string, messages []llm.Message) error
}

// Saver is an in-memory Checkpointer. Stored and returned slices are copies.
type Saver struct {
	mu      sync.RWMutex
	threads map[string][]llm.Message
}

// NewSaver returns an empty saver.
func NewSaver() *Saver {
	return &Saver{threads: make(map[string][]llm.Message)}
}

// Get returns the history of threadID, or nil when none was stored.
func (s *Saver) Get(_ context.Context, threadID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return llm.CloneMessages(s.threads[threadID]), nil
}

// Put replaces the history of threadID.
func (s *Saver) Put(_ context.Context, threadID string, messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = llm.CloneMessages(messages)
	return nil
}

// Threads reports how many threads hold a checkpoint.
func (s *Saver) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
