package wallet

import (
	"context"
	"strings"
	"sync"

	xerrors "OnchainAgent/internal/errors"
)

// Store 抽象钱包凭据的读写。ok 为 false 表示该会话尚无凭据。
type Store interface {
	Load(ctx context.Context, session string) (blob string, ok bool, err error)
	Save(ctx context.Context, session, blob string) error
}

// Locker 由多个会话共享同一存储槽位的实现提供，调用方在
// 读取、构建、回写凭据期间持有锁。
type Locker interface {
	Lock(ctx context.Context, session string) (unlock func(), err error)
}

// Acquire 在 store 支持 Locker 时加锁，否则返回空操作。
func Acquire(ctx context.Context, store Store, session string) (func(), error) {
	if locker, ok := store.(Locker); ok {
		return locker.Lock(ctx, session)
	}
	return func() {}, nil
}

// MemoryStore 按会话保存凭据，仅在当前进程内有效。
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]string
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]string)}
}

// Load 实现 Store 接口。
func (s *MemoryStore) Load(_ context.Context, session string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[session]
	return blob, ok && strings.TrimSpace(blob) != "", nil
}

// Save 实现 Store 接口。
func (s *MemoryStore) Save(_ context.Context, session, blob string) error {
	if strings.TrimSpace(blob) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "钱包凭据不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[session] = blob
	return nil
}

// Layered 优先读取 primary，未命中时回退到 fallback；写入只落到 primary。
type Layered struct {
	primary  Store
	fallback Store
}

// NewLayered 组合两个存储。fallback 为空时等价于 primary。
func NewLayered(primary, fallback Store) Store {
	if fallback == nil {
		return primary
	}
	return &Layered{primary: primary, fallback: fallback}
}

// Load 实现 Store 接口。
func (l *Layered) Load(ctx context.Context, session string) (string, bool, error) {
	blob, ok, err := l.primary.Load(ctx, session)
	if err != nil || ok {
		return blob, ok, err
	}
	return l.fallback.Load(ctx, session)
}

// Save 实现 Store 接口。
func (l *Layered) Save(ctx context.Context, session, blob string) error {
	return l.primary.Save(ctx, session, blob)
}

// Lock 透传 primary 与 fallback 的锁，保证共享槽位的读改写串行。
func (l *Layered) Lock(ctx context.Context, session string) (func(), error) {
	unlockPrimary, err := Acquire(ctx, l.primary, session)
	if err != nil {
		return nil, err
	}
	unlockFallback, err := Acquire(ctx, l.fallback, session)
	if err != nil {
		unlockPrimary()
		return nil, err
	}
	return func() {
		unlockFallback()
		unlockPrimary()
	}, nil
}
