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

// ErrorEntry Agent 执行失败的一条留痕
type ErrorEntry struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorLog Agent 错误留痕的持久化接口。
// 写入走独立路径：执行事务回滚不应带走错误记录。
type ErrorLog interface {
	// Write 追加一条错误记录，并更新 Agent 的 last_error_at
	Write(ctx context.Context, agentID, userID, message string) error
	// ListForAgent 返回 Agent 最近的错误记录，按时间倒序，最多 limit 条
	ListForAgent(ctx context.Context, agentID string, limit int) ([]ErrorEntry, error)
	// Trim 只保留每个 Agent 最近的 keep 条记录
	Trim(ctx context.Context, agentID string, keep int) error
}
