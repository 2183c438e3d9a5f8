package wallet

import (
	"context"
	"os"
	"strings"

	xerrors "OnchainAgent/internal/errors"
)

// DefaultEnvVar 是兼容旧部署的凭据环境变量名。
const DefaultEnvVar = "CDP_WALLET_DATA"

// envSlot 串行化对进程环境变量的读改写，所有 EnvStore 共享。
var envSlot = make(chan struct{}, 1)

// EnvStore 将凭据保存在进程环境变量中，所有会话共用一个槽位。
type EnvStore struct {
	name string
}

// NewEnvStore 创建环境变量存储，name 为空时使用 DefaultEnvVar。
func NewEnvStore(name string) *EnvStore {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultEnvVar
	}
	return &EnvStore{name: name}
}

// Name 返回使用的环境变量名。
func (s *EnvStore) Name() string { return s.name }

// Load 实现 Store 接口，session 被忽略。
func (s *EnvStore) Load(_ context.Context, _ string) (string, bool, error) {
	blob, ok := os.LookupEnv(s.name)
	if !ok || strings.TrimSpace(blob) == "" {
		return "", false, nil
	}
	return blob, true, nil
}

// Save 实现 Store 接口，session 被忽略。
func (s *EnvStore) Save(_ context.Context, _ string, blob string) error {
	if strings.TrimSpace(blob) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "钱包凭据不能为空")
	}
	if err := os.Setenv(s.name, blob); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入钱包环境变量失败")
	}
	return nil
}

// Lock 实现 Locker 接口，等待期间遵循 ctx 的取消。
func (s *EnvStore) Lock(ctx context.Context, _ string) (func(), error) {
	select {
	case envSlot <- struct{}{}:
		return func() { <-envSlot }, nil
	case <-ctx.Done():
		return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待钱包凭据锁超时")
	}
}
