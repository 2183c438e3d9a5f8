package eventbus

import (
	"context"
	"strings"

	xerrors "OnchainAgent/internal/errors"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel 是 Redis 发布频道的默认值。
const DefaultRedisChannel = "agentd:events"

// RedisPublisher 通过 PUBLISH 将事件推送到频道。
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
	closeFn func() error
}

// NewRedisPublisher 创建 Redis 发布器。closeFn 可为空，由调用方管理客户端生命周期时使用。
func NewRedisPublisher(client redis.Cmdable, channel string, closeFn func() error) (*RedisPublisher, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis 客户端不能为空")
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: client, channel: channel, closeFn: closeFn}, nil
}

// Channel 返回发布频道。
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish 实现 Publisher 接口。
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "Redis 发布事件失败")
	}
	return nil
}

// Close 实现 Publisher 接口。
func (p *RedisPublisher) Close() error {
	if p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}
