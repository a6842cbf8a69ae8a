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

package agent

import (
	"context"
	"time"
)

// Locked 在 WithLock 回调内对单个 Agent 的独占视图。
// 回调内的修改通过其方法写回；回调返回后视图失效。
type Locked struct {
	Agent *Agent

	saveMemory   func(memory map[string]interface{}) error
	touchCheck   func(at time.Time) error
	touchReceive func(at time.Time) error
}

// SaveMemory 持久化记忆
func (l *Locked) SaveMemory(memory map[string]interface{}) error {
	return l.saveMemory(memory)
}

// TouchCheck 记录最近一次检查时刻
func (l *Locked) TouchCheck(at time.Time) error {
	return l.touchCheck(at)
}

// TouchReceive 记录最近一次事件接收时刻
func (l *Locked) TouchReceive(at time.Time) error {
	return l.touchReceive(at)
}

// Store Agent 持久化接口
type Store interface {
	// Create 保存新 Agent；ID 已存在时返回错误
	Create(ctx context.Context, a *Agent) error
	// Update 覆盖保存；不存在返回 ErrNotFound
	Update(ctx context.Context, a *Agent) error
	// Get 按 ID 读取；不存在返回 ErrNotFound
	Get(ctx context.Context, id string) (*Agent, error)
	// Delete 删除 Agent 记录（关联的事件与链接由调用方清理）
	Delete(ctx context.Context, id string) error
	// ListAll 返回全部 Agent
	ListAll(ctx context.Context) ([]Agent, error)
	// ListSchedulable 返回可用且调度标签非 never 的 Agent
	ListSchedulable(ctx context.Context) ([]Agent, error)
	// TouchEvent 记录 Agent 最近一次发出事件的时刻
	TouchEvent(ctx context.Context, id string, at time.Time) error
	// TouchError 记录 Agent 最近一次出错的时刻
	TouchError(ctx context.Context, id string, at time.Time) error

	// WithLock 对单个 Agent 串行执行 fn：同一 Agent 的并发调用
	// 互斥，fn 返回前其它调用方阻塞。Agent 不存在返回 ErrNotFound。
	// fn 内通过 Locked 所做的修改与 fn 的成功一并生效。
	WithLock(ctx context.Context, id string, fn func(l *Locked) error) error
}
