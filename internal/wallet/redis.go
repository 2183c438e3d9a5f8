package wallet

import (
	"context"
	"errors"
	"strings"

	xerrors "OnchainAgent/internal/errors"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix 是 Redis 键前缀的默认值。
const DefaultRedisKeyPrefix = "agentd:wallet:"

// RedisStore 以 "<prefix><session>" 为键保存凭据。
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore 创建 Redis 存储。
func NewRedisStore(client redis.Cmdable, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis 客户端不能为空")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(session string) string {
	return s.prefix + session
}

// Load 实现 Store 接口。
func (s *RedisStore) Load(ctx context.Context, session string) (string, bool, error) {
	blob, err := s.client.Get(ctx, s.key(session)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 钱包凭据失败",
			xerrors.WithMetadata("session", session))
	}
	return blob, strings.TrimSpace(blob) != "", nil
}

// Save 实现 Store 接口。
func (s *RedisStore) Save(ctx context.Context, session, blob string) error {
	if strings.TrimSpace(blob) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "钱包凭据不能为空")
	}
	if err := s.client.Set(ctx, s.key(session), blob, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 钱包凭据失败",
			xerrors.WithMetadata("session", session))
	}
	return nil
}
