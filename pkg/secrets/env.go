// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type envStore struct{}

// NewEnvStore 创建环境变量 secret store。
// 配置占位符里的 key 允许写成 "database.dsn" 这类形式，
// 查找时会归一化为 DATABASE_DSN 再查环境变量。
func NewEnvStore() Store {
	return &envStore{}
}

func envKey(key string) string {
	k := strings.NewReplacer(".", "_", "-", "_").Replace(key)
	return strings.ToUpper(k)
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	if v, ok := os.LookupEnv(key); ok {
		return v, nil
	}
	if v, ok := os.LookupEnv(envKey(key)); ok {
		return v, nil
	}
	return "", fmt.Errorf("environment variable not set: %s", key)
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(envKey(key), value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(envKey(key))
}

func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	want := envKey(prefix)
	var keys []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, want) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}
