package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	xerrors "OnchainAgent/internal/errors"
)

// Message 是镜像到外部通道的事件。
type Message struct {
	RunID    string    `json:"run_id"`
	ThreadID string    `json:"thread_id"`
	Event    string    `json:"event"`
	Data     string    `json:"data"`
	At       time.Time `json:"at"`
}

// Publisher 抽象事件发布。
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

func encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, "序列化事件失败")
	}
	return payload, nil
}

// MemoryPublisher 在内存中保留已发布的事件，主要用于本地调试与测试。
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemoryPublisher 创建内存发布器。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (p *MemoryPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return xerrors.New(xerrors.CodePublishFailure, "发布器已关闭")
	}
	p.messages = append(p.messages, msg)
	return nil
}

// Messages 返回已发布事件的副本。
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Close 实现 Publisher 接口。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
