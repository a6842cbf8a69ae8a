// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"strings"
)

// Store Secret 存储接口
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出所有 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string            `mapstructure:"provider"` // vault | env | memory
	Config   map[string]string `mapstructure:"config"`   // Provider-specific config
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    config.Config["address"],
			Token:      config.Config["token"],
			PathPrefix: config.Config["path_prefix"],
		})
	case "env", "":
		return NewEnvStore(), nil
	default:
		return NewEnvStore(), nil
	}
}

// Resolve 解析 "${KEY}" 形式的占位符：命中则经 store 查询，否则原样返回。
// 配置层用它解析 DSN、Redis 密码等敏感值。
func Resolve(ctx context.Context, store Store, raw string) (string, error) {
	if store == nil || !strings.HasPrefix(raw, "${") || !strings.HasSuffix(raw, "}") {
		return raw, nil
	}
	key := strings.TrimSuffix(strings.TrimPrefix(raw, "${"), "}")
	if key == "" {
		return raw, nil
	}
	return store.Get(ctx, key)
}
