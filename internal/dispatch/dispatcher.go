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

// Package dispatch 把时钟节拍翻译成作业：调度节拍产出 check 作业，
// 传播节拍产出 propagate 作业，传播扫描产出 receive 作业。
package dispatch

import (
	"context"
	"time"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/queue"
	"github.com/huginn/huginn-sub005/pkg/log"
)

// Dispatcher 节拍到作业的翻译层
type Dispatcher struct {
	agents   agent.Store
	jobs     queue.Store
	registry *agent.Registry
	wakeup   queue.WakeupQueue
	logger   *log.Logger
}

// NewDispatcher 创建 Dispatcher；wakeup 可为 nil
func NewDispatcher(agents agent.Store, jobs queue.Store, registry *agent.Registry, wakeup queue.WakeupQueue, logger *log.Logger) *Dispatcher {
	if wakeup == nil {
		wakeup = queue.WakeupNone{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Dispatcher{
		agents:   agents,
		jobs:     jobs,
		registry: registry,
		wakeup:   wakeup,
		logger:   logger.Component("dispatcher"),
	}
}

// DispatchSchedule 调度节拍：为每个调度标签在 t 到期的可用 Agent
// 入队一条 check 作业。单个 Agent 入队失败不影响其余。
func (d *Dispatcher) DispatchSchedule(ctx context.Context, t time.Time) {
	agents, err := d.agents.ListSchedulable(ctx)
	if err != nil {
		d.logger.Error("list schedulable agents failed", "error", err)
		return
	}

	enqueued := 0
	for i := range agents {
		a := &agents[i]
		if !a.Schedule.DueAt(t) {
			continue
		}
		behavior, err := d.registry.Resolve(a.Type)
		if err != nil {
			d.logger.Warn("skip agent with unknown type", "agent_id", a.ID, "type", a.Type)
			continue
		}
		if !behavior.CanBeScheduled() {
			continue
		}
		job, err := queue.NewJob(queue.QueueDefault, queue.KindCheck,
			queue.CheckPayload{AgentID: a.ID})
		if err != nil {
			d.logger.Error("build check job failed", "agent_id", a.ID, "error", err)
			continue
		}
		if err := d.jobs.Enqueue(ctx, job); err != nil {
			d.logger.Error("enqueue check job failed", "agent_id", a.ID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		d.logger.Info("schedule tick dispatched", "tick", t.Format(time.RFC3339), "jobs", enqueued)
		if err := d.wakeup.NotifyReady(ctx, queue.QueueDefault); err != nil {
			d.logger.Warn("wakeup notify failed", "error", err)
		}
	}
}

// DispatchPropagation 传播节拍：入队一条 propagate 作业。
// 已有同类作业在排队时跳过，扫描不会越堆越多。
func (d *Dispatcher) DispatchPropagation(ctx context.Context, t time.Time) {
	queued, err := d.jobs.HasQueued(ctx, queue.QueuePropagation, queue.PropagateDedupKey())
	if err != nil {
		d.logger.Error("check queued propagation failed", "error", err)
		return
	}
	if queued {
		return
	}

	job, err := queue.NewJob(queue.QueuePropagation, queue.KindPropagate,
		queue.PropagatePayload{RequestedAt: t})
	if err != nil {
		d.logger.Error("build propagate job failed", "error", err)
		return
	}
	job.DedupKey = queue.PropagateDedupKey()
	job.Priority = 1
	if err := d.jobs.Enqueue(ctx, job); err != nil {
		d.logger.Error("enqueue propagate job failed", "error", err)
		return
	}
	if err := d.wakeup.NotifyReady(ctx, queue.QueuePropagation); err != nil {
		d.logger.Warn("wakeup notify failed", "error", err)
	}
}
