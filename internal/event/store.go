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

package event

import (
	"context"
	"time"
)

// Store Event 存储。Emit 独立提交：check/receive 失败时已产生的 Event 不回滚
type Store interface {
	// Emit 持久化一条新 Event，返回分配的 id；提交即对传播可见
	Emit(ctx context.Context, e *Event) (int64, error)
	// Get 按 id 查询；不存在返回 nil, nil
	Get(ctx context.Context, id int64) (*Event, error)
	// GetByIDs 按 id 升序返回存在的 Event；入队与执行之间被删除的 id 直接跳过
	GetByIDs(ctx context.Context, ids []int64) ([]Event, error)
	// LatestID 返回该 Agent 最新 Event id；无 Event 返回 0
	LatestID(ctx context.Context, agentID string) (int64, error)
	// PendingAfter 返回该 Agent id 大于 afterID 的 Event id 列表（升序）；limit<=0 不限
	PendingAfter(ctx context.Context, agentID string, afterID int64, limit int) ([]int64, error)
	// Reemit 复制 payload 生成新 Event（新 id），原 Event 不变；不存在返回 ErrNotFound
	Reemit(ctx context.Context, id int64) (int64, error)
	// DeleteExpired 删除 expires_at 已到期的 Event，返回删除数量（保留清理）
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	// DeleteForAgent 删除该 Agent 的全部 Event（Agent 删除级联）
	DeleteForAgent(ctx context.Context, agentID string) error
}
