// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const wakeupKey = "huginn:wakeup"

// WakeupRedis 跨进程唤醒通道：LPUSH 提示、BRPOP 等待。
// 多个 worker 共享同一个 key，谁弹到谁去认领。
type WakeupRedis struct {
	client *redis.Client
}

// WakeupRedisConfig Redis 连接参数
type WakeupRedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewWakeupRedis 创建基于 Redis 的唤醒通道
func NewWakeupRedis(ctx context.Context, cfg WakeupRedisConfig) (*WakeupRedis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &WakeupRedis{client: client}, nil
}

// Close 关闭 Redis 连接
func (w *WakeupRedis) Close() error {
	return w.client.Close()
}

func (w *WakeupRedis) NotifyReady(ctx context.Context, queue string) error {
	return w.client.LPush(ctx, wakeupKey, queue).Err()
}

func (w *WakeupRedis) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := w.client.BRPop(ctx, timeout, wakeupKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	// BRPOP 返回 [key, value]
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}
