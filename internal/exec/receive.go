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
	"github.com/huginn/huginn-sub005/internal/event"
	"github.com/huginn/huginn-sub005/internal/queue"
	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
	"github.com/huginn/huginn-sub005/pkg/metrics"
	"github.com/huginn/huginn-sub005/pkg/tracing"
)

// runReceive 执行一条 receive 作业。载荷里的事件 id 不可信，
// 先按水位过滤再从事件库按 id 升序重取，整批在一次行锁事务内
// 交给接收方，提交后水位一次前移到批次最大 id。失败不前移水位，
// 整批重新投递，由接收方按至少一次语义容忍重复。
func (e *Executor) runReceive(ctx context.Context, job *queue.Job) error {
	var payload queue.ReceivePayload
	if err := job.DecodePayload(&payload); err != nil {
		e.logger.Error("bad receive payload", "job_id", job.ID, "error", err)
		return nil
	}

	ctx, span := tracing.StartJobSpan(ctx, queue.KindReceive, job.ID, payload.ReceiverID)
	defer span.End()

	watermark, err := e.links.Watermark(ctx, payload.SourceID, payload.ReceiverID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			// 链接已被删除，作业作废
			return nil
		}
		return err
	}

	var pending []int64
	maxID := watermark
	for _, id := range payload.EventIDs {
		if id > watermark {
			pending = append(pending, id)
		}
		if id > maxID {
			maxID = id
		}
	}
	if len(pending) == 0 {
		return nil
	}

	fetched, err := e.events.GetByIDs(ctx, pending)
	if err != nil {
		return err
	}
	now := nowFunc()
	var batch []event.Event
	for _, ev := range fetched {
		if !ev.Expired(now) {
			batch = append(batch, ev)
		}
	}

	if len(batch) > 0 {
		delivered, err := e.deliverBatch(ctx, payload.ReceiverID, batch)
		if err != nil {
			return err
		}
		if !delivered {
			// 接收方不可用或已不接收事件，水位不动，事件留给后续扫描
			return nil
		}
	}
	// 过期或已删除的事件也被水位越过，链接不会卡在死事件上
	return e.links.AdvanceWatermark(ctx, payload.SourceID, payload.ReceiverID, maxID)
}

// deliverBatch 在一次行锁事务内把整批事件交给接收方的 Receive；
// 返回 false 表示接收方当前不接收，调用方应停投但不报错
func (e *Executor) deliverBatch(ctx context.Context, receiverID string, batch []event.Event) (bool, error) {
	var (
		agentType string
		userID    string
		emitted   int
		skipped   bool
	)
	started := nowFunc()
	err := e.agents.WithLock(ctx, receiverID, func(l *agent.Locked) error {
		a := l.Agent
		agentType = a.Type
		userID = a.UserID
		if !a.Available() {
			skipped = true
			return nil
		}
		behavior, rerr := e.registry.Resolve(a.Type)
		if rerr != nil {
			// 类型未注册视同不可用，注册后由后续扫描补投
			e.logger.Warn("receiver type not registered, skipping delivery",
				"agent_id", a.ID, "type", a.Type)
			skipped = true
			return nil
		}
		if !behavior.CanReceiveEvents() {
			skipped = true
			return nil
		}

		run := agent.NewRun(a, e.emitFunc(a))
		if err := behavior.Receive(ctx, run, batch); err != nil {
			emitted = run.Emitted()
			return err
		}
		emitted = run.Emitted()
		if err := l.SaveMemory(run.Memory); err != nil {
			return err
		}
		return l.TouchReceive(nowFunc())
	})

	if agentType != "" {
		metrics.ReceiveDuration.WithLabelValues(agentType).Observe(time.Since(started).Seconds())
	}
	if emitted > 0 {
		metrics.EventsEmittedTotal.WithLabelValues(agentType).Add(float64(emitted))
		if terr := e.agents.TouchEvent(ctx, receiverID, nowFunc()); terr != nil {
			e.logger.Warn("touch last_event_at failed", "agent_id", receiverID, "error", terr)
		}
	}

	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			// 接收方已被删除
			return false, nil
		}
		e.logAgentError(ctx, receiverID, userID, err)
		return false, err
	}
	if skipped {
		return false, nil
	}
	return true, nil
}
