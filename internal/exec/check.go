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

package exec

import (
	"context"
	"errors"
	"time"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/queue"
	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
	"github.com/huginn/huginn-sub005/pkg/metrics"
	"github.com/huginn/huginn-sub005/pkg/tracing"
)

// nowFunc 便于测试替换时钟
var nowFunc = time.Now

// runCheck 执行一条 check 作业。行锁内完成行为执行、记忆保存与
// last_check_at 更新；同一 Agent 的 check 与 receive 由此互相串行。
// 行为已发出的事件独立提交，失败重试不会让它们消失。
func (e *Executor) runCheck(ctx context.Context, job *queue.Job) error {
	var payload queue.CheckPayload
	if err := job.DecodePayload(&payload); err != nil {
		e.logger.Error("bad check payload", "job_id", job.ID, "error", err)
		return nil
	}

	ctx, span := tracing.StartJobSpan(ctx, queue.KindCheck, job.ID, payload.AgentID)
	defer span.End()

	var (
		agentType string
		userID    string
		emitted   int
	)
	started := nowFunc()
	err := e.agents.WithLock(ctx, payload.AgentID, func(l *agent.Locked) error {
		a := l.Agent
		agentType = a.Type
		userID = a.UserID
		if !a.Available() {
			return nil
		}
		behavior, rerr := e.registry.Resolve(a.Type)
		if rerr != nil {
			// 类型未注册视同不可用，注册后等下一次调度
			e.logger.Warn("agent type not registered, skipping check",
				"agent_id", a.ID, "type", a.Type)
			return nil
		}
		if !behavior.CanBeScheduled() {
			return nil
		}

		run := agent.NewRun(a, e.emitFunc(a))
		if err := behavior.Check(ctx, run); err != nil {
			emitted = run.Emitted()
			return err
		}
		emitted = run.Emitted()
		if err := l.SaveMemory(run.Memory); err != nil {
			return err
		}
		return l.TouchCheck(nowFunc())
	})

	if agentType != "" {
		metrics.CheckDuration.WithLabelValues(agentType).Observe(time.Since(started).Seconds())
	}
	if emitted > 0 {
		metrics.EventsEmittedTotal.WithLabelValues(agentType).Add(float64(emitted))
		// 行锁事务之外更新，避免与 WithLock 持有的行锁互等
		if terr := e.agents.TouchEvent(ctx, payload.AgentID, nowFunc()); terr != nil {
			e.logger.Warn("touch last_event_at failed", "agent_id", payload.AgentID, "error", terr)
		}
	}

	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			// Agent 在入队与执行之间被删除，作业作废
			return nil
		}
		e.logAgentError(ctx, payload.AgentID, userID, err)
		return err
	}
	return nil
}
