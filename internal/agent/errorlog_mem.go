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
	"sync"
	"time"
)

// ErrorLogMem 内存实现；agents 可为空，此时不更新 last_error_at
type ErrorLogMem struct {
	mu      sync.Mutex
	nextID  int64
	byAgent map[string][]ErrorEntry

	agents Store
}

// NewErrorLogMem 创建内存错误留痕
func NewErrorLogMem(agents Store) *ErrorLogMem {
	return &ErrorLogMem{byAgent: make(map[string][]ErrorEntry), agents: agents}
}

func (e *ErrorLogMem) Write(ctx context.Context, agentID, userID, message string) error {
	now := time.Now()
	e.mu.Lock()
	e.nextID++
	entry := ErrorEntry{
		ID:        e.nextID,
		AgentID:   agentID,
		UserID:    userID,
		Message:   message,
		CreatedAt: now,
	}
	e.byAgent[agentID] = append(e.byAgent[agentID], entry)
	e.mu.Unlock()

	if e.agents != nil {
		// Agent 可能已被删除，留痕本身仍然保留
		_ = e.agents.TouchError(ctx, agentID, now)
	}
	return nil
}

func (e *ErrorLogMem) ListForAgent(ctx context.Context, agentID string, limit int) ([]ErrorEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.byAgent[agentID]
	out := make([]ErrorEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (e *ErrorLogMem) Trim(ctx context.Context, agentID string, keep int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.byAgent[agentID]
	if len(entries) > keep {
		e.byAgent[agentID] = append([]ErrorEntry(nil), entries[len(entries)-keep:]...)
	}
	return nil
}
