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
	"time"
)

// Store 作业队列的持久化接口。
//
// 认领采用租约语义：Claim 把作业置为 running 并发放一次性
// lock token，之后的 Complete/Release/MarkFailed 必须带原 token。
// 租约被回收后旧 token 失效，迟到的持有者收到 ErrLockHeld，
// 作业本身已交还队列重新投递。
type Store interface {
	// Enqueue 追加一条作业
	Enqueue(ctx context.Context, job *Job) error

	// Claim 从 queues 中认领一条到期作业：优先级高者先出，
	// 同优先级按 run_at、created_at 升序。无可认领作业返回 (nil, nil)。
	Claim(ctx context.Context, queues []string, workerID string, now time.Time) (*Job, error)

	// Complete 作业执行成功，移除记录
	Complete(ctx context.Context, jobID, lockToken string) error

	// Release 执行失败后交还队列：记录错误，推迟到 runAt 再投递
	Release(ctx context.Context, jobID, lockToken string, runAt time.Time, lastError string) error

	// MarkFailed 重试耗尽，转入 failed 终态并保留记录
	MarkFailed(ctx context.Context, jobID, lockToken string, lastError string) error

	// ReclaimStale 把 locked_at 早于 cutoff 的 running 作业交还队列，
	// 返回回收条数
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)

	// CountQueued 返回队列中 pending 作业数
	CountQueued(ctx context.Context, queue string) (int, error)

	// HasQueued 报告是否存在该去重键的 pending 作业
	HasQueued(ctx context.Context, queue, dedupKey string) (bool, error)

	// ListFailed 返回最近的 failed 作业，按失败时间倒序
	ListFailed(ctx context.Context, limit int) ([]Job, error)

	// Retry 把一条 failed 作业重置为 pending，重试计数清零
	Retry(ctx context.Context, jobID string) error

	// DeleteFailed 删除一条 failed 作业记录
	DeleteFailed(ctx context.Context, jobID string) error
}
