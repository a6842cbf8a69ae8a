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

package dispatch

import (
	"context"
	"time"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/event"
	"github.com/huginn/huginn-sub005/internal/link"
	"github.com/huginn/huginn-sub005/internal/queue"
	"github.com/huginn/huginn-sub005/pkg/log"
	"github.com/huginn/huginn-sub005/pkg/metrics"
)

// sweepBatchLimit 单条链接一次扫描最多带走的事件数；
// 剩余的留给下一轮
const sweepBatchLimit = 100

// Propagator 基于水位的事件传播扫描。
// 扫描是幂等的：投递进度记在链接水位上，重复扫描只会看到
// 尚未投递的事件；同一链接已有接收作业在排队时跳过。
type Propagator struct {
	agents   agent.Store
	events   event.Store
	links    link.Store
	jobs     queue.Store
	registry *agent.Registry
	wakeup   queue.WakeupQueue
	logger   *log.Logger
}

// NewPropagator 创建 Propagator；wakeup 可为 nil
func NewPropagator(agents agent.Store, events event.Store, links link.Store, jobs queue.Store, registry *agent.Registry, wakeup queue.WakeupQueue, logger *log.Logger) *Propagator {
	if wakeup == nil {
		wakeup = queue.WakeupNone{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Propagator{
		agents:   agents,
		events:   events,
		links:    links,
		jobs:     jobs,
		registry: registry,
		wakeup:   wakeup,
		logger:   logger.Component("propagator"),
	}
}

// Sweep 扫描全部链接，为水位之后的事件入队接收作业，
// 返回本轮入队的作业数。单条链接的失败记录后继续。
func (p *Propagator) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	links, err := p.links.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, l := range links {
		n, err := p.sweepLink(ctx, l)
		if err != nil {
			p.logger.Error("sweep link failed",
				"source_id", l.SourceID, "receiver_id", l.ReceiverID, "error", err)
			continue
		}
		enqueued += n
	}

	if enqueued > 0 {
		p.logger.Info("sweep enqueued receive jobs", "jobs", enqueued)
		if err := p.wakeup.NotifyReady(ctx, queue.QueueDefault); err != nil {
			p.logger.Warn("wakeup notify failed", "error", err)
		}
	}
	return enqueued, nil
}

func (p *Propagator) sweepLink(ctx context.Context, l link.Link) (int, error) {
	receiver, err := p.agents.Get(ctx, l.ReceiverID)
	if err != nil {
		return 0, err
	}
	if !receiver.Available() {
		return 0, nil
	}
	behavior, err := p.registry.Resolve(receiver.Type)
	if err != nil {
		// 类型未注册视同不可用，注册后再传播；不算扫描错误
		p.logger.Debug("receiver type not registered, skipping link",
			"receiver_id", l.ReceiverID, "type", receiver.Type)
		return 0, nil
	}
	if !behavior.CanReceiveEvents() {
		return 0, nil
	}

	// 同一链接未执行的接收作业只保留一条；它执行后水位前移，
	// 余下的事件由后续扫描接力
	dedupKey := queue.ReceiveDedupKey(l.SourceID, l.ReceiverID)
	queued, err := p.jobs.HasQueued(ctx, queue.QueueDefault, dedupKey)
	if err != nil {
		return 0, err
	}
	if queued {
		return 0, nil
	}

	ids, err := p.events.PendingAfter(ctx, l.SourceID, l.LastDeliveredEventID, sweepBatchLimit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	job, err := queue.NewJob(queue.QueueDefault, queue.KindReceive, queue.ReceivePayload{
		SourceID:   l.SourceID,
		ReceiverID: l.ReceiverID,
		EventIDs:   ids,
	})
	if err != nil {
		return 0, err
	}
	job.DedupKey = dedupKey
	if err := p.jobs.Enqueue(ctx, job); err != nil {
		return 0, err
	}
	metrics.SweepEnqueued.Inc()
	return 1, nil
}
