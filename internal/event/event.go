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

// Package event 定义 Agent 产生的不可变 Event 及其存储。
// Event id 单调递增，是传播与水位（watermark）逻辑唯一的排序/去重键。
package event

import "time"

// Event 由某个 Agent 产生的一条不可变记录；除删除/过期外不会被修改
type Event struct {
	// ID 单调递增（Postgres bigserial / 内存原子计数器），创建顺序即 id 顺序
	ID      int64
	AgentID string
	UserID  string
	// Payload 任意结构化负载，JSON 序列化存储
	Payload   map[string]interface{}
	CreatedAt time.Time
	// ExpiresAt 零值表示永不过期；到期后由保留清理删除
	ExpiresAt time.Time
}

// Expired 判断 Event 在 now 时刻是否已过期
func (e *Event) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
