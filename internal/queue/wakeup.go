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

// WakeupQueue 入队方到 worker 的唤醒通道。只是提示，不承载作业：
// 通知丢失无碍，worker 的轮询兜底会在下个周期补上。
type WakeupQueue interface {
	// NotifyReady 提示某队列有新作业
	NotifyReady(ctx context.Context, queue string) error
	// Receive 阻塞等待唤醒，返回队列名；超时返回 ("", nil)
	Receive(ctx context.Context, timeout time.Duration) (string, error)
}

// WakeupMem 进程内实现：scheduler 与 worker 同进程时可用。
// 跨进程部署用 WakeupRedis。
type WakeupMem struct {
	ch chan string
}

// NewWakeupMem 创建进程内唤醒通道
func NewWakeupMem() *WakeupMem {
	return &WakeupMem{ch: make(chan string, 256)}
}

func (w *WakeupMem) NotifyReady(ctx context.Context, queue string) error {
	select {
	case w.ch <- queue:
	default:
		// 通道满说明 worker 已经忙不过来，丢弃提示即可
	}
	return nil
}

func (w *WakeupMem) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q := <-w.ch:
		return q, nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// WakeupNone 空实现：worker 只靠轮询
type WakeupNone struct{}

func (WakeupNone) NotifyReady(ctx context.Context, queue string) error { return nil }

func (WakeupNone) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
