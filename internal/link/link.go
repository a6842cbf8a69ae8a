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

// Package link 定义 Agent 之间的有向订阅（source → receiver）与投递水位。
// 水位按 (source, receiver) 对分别维护，只在 Receive 提交后前移；
// 同一 Agent 订阅自己（self-link）是合法场景。
package link

import (
	"context"
	"time"
)

// Link 一条有向订阅：receiver 消费 source 产生的 Event
type Link struct {
	SourceID   string
	ReceiverID string
	// LastDeliveredEventID 已成功投递给 receiver 的最大 Event id（水位）；0 表示尚未投递过
	LastDeliveredEventID int64
	CreatedAt            time.Time
}

// Store Link 存储；AdvanceWatermark 只允许前移，重复投递的回退写入被忽略
type Store interface {
	// Create 建立订阅；已存在时幂等
	Create(ctx context.Context, sourceID, receiverID string) error
	// Delete 移除订阅
	Delete(ctx context.Context, sourceID, receiverID string) error
	// DeleteForAgent 移除该 Agent 作为 source 或 receiver 的全部订阅（Agent 删除级联）
	DeleteForAgent(ctx context.Context, agentID string) error
	// ListAll 返回全部订阅；传播扫描的输入
	ListAll(ctx context.Context) ([]Link, error)
	// ListForSource 返回以 sourceID 为源的订阅
	ListForSource(ctx context.Context, sourceID string) ([]Link, error)
	// Watermark 返回该订阅的当前水位；订阅不存在返回 ErrNotFound
	Watermark(ctx context.Context, sourceID, receiverID string) (int64, error)
	// AdvanceWatermark 前移水位到 eventID；小于等于当前水位或订阅已删除时为 no-op（单调性）
	AdvanceWatermark(ctx context.Context, sourceID, receiverID string, eventID int64) error
}
