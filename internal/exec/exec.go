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

// Package exec 作业执行器：check、receive、propagate 三种作业的
// 处理逻辑，以及交给 worker 的路由入口。
package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/dispatch"
	"github.com/huginn/huginn-sub005/internal/event"
	"github.com/huginn/huginn-sub005/internal/link"
	"github.com/huginn/huginn-sub005/internal/queue"
	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
	"github.com/huginn/huginn-sub005/pkg/log"
)

// Executor 执行三种作业
type Executor struct {
	agents     agent.Store
	events     event.Store
	links      link.Store
	errlog     agent.ErrorLog
	registry   *agent.Registry
	propagator *dispatch.Propagator
	logger     *log.Logger
}

// NewExecutor 创建 Executor
func NewExecutor(agents agent.Store, events event.Store, links link.Store, errlog agent.ErrorLog, registry *agent.Registry, propagator *dispatch.Propagator, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Executor{
		agents:     agents,
		events:     events,
		links:      links,
		errlog:     errlog,
		registry:   registry,
		propagator: propagator,
		logger:     logger.Component("exec"),
	}
}

// RunJob 按作业种类分发，作为 queue.RunJobFunc 挂到 worker 上
func (e *Executor) RunJob(ctx context.Context, job *queue.Job) error {
	switch job.Kind {
	case queue.KindCheck:
		return e.runCheck(ctx, job)
	case queue.KindReceive:
		return e.runReceive(ctx, job)
	case queue.KindPropagate:
		return e.runPropagate(ctx, job)
	default:
		// 未知种类重试也无济于事，吞掉并留日志
		e.logger.Error("unknown job kind", "job_id", job.ID, "kind", job.Kind)
		return nil
	}
}

// logAgentError 失败留痕走独立写入路径，不受执行事务影响。
// 锁竞争和作业超时只走队列重试，不记成 Agent 错误。
func (e *Executor) logAgentError(ctx context.Context, agentID, userID string, err error) {
	if e.errlog == nil {
		return
	}
	if errors.Is(err, pkgerrors.ErrLockHeld) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return
	}
	if werr := e.errlog.Write(ctx, agentID, userID, err.Error()); werr != nil {
		e.logger.Error("write agent error log failed", "agent_id", agentID, "error", werr)
	}
}

func (e *Executor) emitFunc(a *agent.Agent) func(ctx context.Context, payload map[string]interface{}) (*event.Event, error) {
	return func(ctx context.Context, payload map[string]interface{}) (*event.Event, error) {
		ev := &event.Event{
			AgentID:   a.ID,
			UserID:    a.UserID,
			Payload:   payload,
			ExpiresAt: a.EventExpiry(nowFunc()),
		}
		id, err := e.events.Emit(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("emit event for agent %s: %w", a.ID, err)
		}
		ev.ID = id
		return ev, nil
	}
}
