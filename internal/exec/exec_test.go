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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/dispatch"
	"github.com/huginn/huginn-sub005/internal/event"
	"github.com/huginn/huginn-sub005/internal/link"
	"github.com/huginn/huginn-sub005/internal/queue"
)

// fakeBehavior 行为桩；Resolve 返回共享实例，测试可观察调用
type fakeBehavior struct {
	schedulable bool
	receives    bool

	checkFn   func(ctx context.Context, run *agent.Run) error
	receiveFn func(ctx context.Context, run *agent.Run, ev *event.Event) error

	received []int64
	batches  int
}

func (f *fakeBehavior) Check(ctx context.Context, run *agent.Run) error {
	if f.checkFn != nil {
		return f.checkFn(ctx, run)
	}
	return nil
}

func (f *fakeBehavior) Receive(ctx context.Context, run *agent.Run, events []event.Event) error {
	f.batches++
	for i := range events {
		ev := &events[i]
		if f.receiveFn != nil {
			if err := f.receiveFn(ctx, run, ev); err != nil {
				return err
			}
		}
		f.received = append(f.received, ev.ID)
	}
	return nil
}

func (f *fakeBehavior) CanBeScheduled() bool   { return f.schedulable }
func (f *fakeBehavior) CanReceiveEvents() bool { return f.receives }

type fixture struct {
	agents   *agent.StoreMem
	events   *event.StoreMem
	links    *link.StoreMem
	jobs     *queue.StoreMem
	errlog   *agent.ErrorLogMem
	registry *agent.Registry
	exec     *Executor

	behaviors map[string]*fakeBehavior
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		agents:    agent.NewStoreMem(),
		events:    event.NewStoreMem(),
		links:     link.NewStoreMem(),
		jobs:      queue.NewStoreMem(),
		registry:  agent.NewRegistry(),
		behaviors: map[string]*fakeBehavior{},
	}
	f.errlog = agent.NewErrorLogMem(f.agents)
	propagator := dispatch.NewPropagator(f.agents, f.events, f.links, f.jobs, f.registry, nil, nil)
	f.exec = NewExecutor(f.agents, f.events, f.links, f.errlog, f.registry, propagator, nil)
	return f
}

func (f *fixture) registerType(name string, b *fakeBehavior) {
	f.behaviors[name] = b
	f.registry.Register(name, func() agent.Behavior { return b })
}

func (f *fixture) addAgent(t *testing.T, id, agentType string) {
	t.Helper()
	require.NoError(t, f.agents.Create(context.Background(), &agent.Agent{
		ID: id, UserID: "u1", Type: agentType, Schedule: agent.ScheduleNever,
	}))
}

func checkJob(t *testing.T, agentID string) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.QueueDefault, queue.KindCheck, queue.CheckPayload{AgentID: agentID})
	require.NoError(t, err)
	return job
}

func receiveJob(t *testing.T, sourceID, receiverID string, ids []int64) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.QueueDefault, queue.KindReceive, queue.ReceivePayload{
		SourceID: sourceID, ReceiverID: receiverID, EventIDs: ids,
	})
	require.NoError(t, err)
	return job
}

func TestRunCheckEmitsEventsAndSavesMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerType("poller", &fakeBehavior{schedulable: true, checkFn: func(ctx context.Context, run *agent.Run) error {
		n, _ := run.Memory["runs"].(int)
		run.Memory["runs"] = n + 1
		_, err := run.Emit(ctx, map[string]interface{}{"status": "ok"})
		return err
	}})
	f.addAgent(t, "a1", "poller")

	require.NoError(t, f.exec.RunJob(ctx, checkJob(t, "a1")))

	latest, err := f.events.LatestID(ctx, "a1")
	require.NoError(t, err)
	assert.NotZero(t, latest, "check should have emitted an event")

	a, err := f.agents.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Memory["runs"])
	assert.False(t, a.LastCheckAt.IsZero(), "last_check_at should be set")
	assert.False(t, a.LastEventAt.IsZero(), "last_event_at should be set")
}

func TestRunCheckFailureKeepsEmittedEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerType("flaky", &fakeBehavior{schedulable: true, checkFn: func(ctx context.Context, run *agent.Run) error {
		if _, err := run.Emit(ctx, map[string]interface{}{"partial": true}); err != nil {
			return err
		}
		run.Memory["dirty"] = true
		return fmt.Errorf("upstream returned 500")
	}})
	f.addAgent(t, "a1", "flaky")

	err := f.exec.RunJob(ctx, checkJob(t, "a1"))
	require.Error(t, err, "check failure should surface for retry")

	// 失败前发出的事件保留
	latest, _ := f.events.LatestID(ctx, "a1")
	assert.NotZero(t, latest, "events emitted before the failure must survive")

	// 记忆不保存
	a, _ := f.agents.Get(ctx, "a1")
	assert.NotContains(t, a.Memory, "dirty")

	// 错误走独立留痕
	entries, err := f.errlog.ListForAgent(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "upstream returned 500")
	assert.False(t, a.LastErrorAt.IsZero(), "last_error_at should be set")
}

func TestRunCheckSkipsDisabledAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	called := false
	f.registerType("poller", &fakeBehavior{schedulable: true, checkFn: func(ctx context.Context, run *agent.Run) error {
		called = true
		return nil
	}})
	require.NoError(t, f.agents.Create(ctx, &agent.Agent{
		ID: "a1", UserID: "u1", Type: "poller", Schedule: agent.ScheduleEvery1m, Disabled: true,
	}))

	require.NoError(t, f.exec.RunJob(ctx, checkJob(t, "a1")))
	assert.False(t, called, "disabled agent must not run")
}

func TestRunCheckDeletedAgentIsNoop(t *testing.T) {
	f := newFixture(t)
	f.registerType("poller", &fakeBehavior{schedulable: true})
	// Agent 在入队与执行之间被删除：作业作废而不是反复重试
	assert.NoError(t, f.exec.RunJob(context.Background(), checkJob(t, "ghost")))
}

func TestRunReceiveDeliversAscendingAndAdvancesWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := &fakeBehavior{schedulable: true}
	sink := &fakeBehavior{receives: true}
	f.registerType("poller", source)
	f.registerType("sink", sink)
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	var ids []int64
	for i := 0; i < 2; i++ {
		id, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1", Payload: map[string]interface{}{"seq": i}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", ids)))

	assert.Equal(t, ids, sink.received, "events must arrive in ascending id order")
	wm, err := f.links.Watermark(ctx, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, ids[1], wm)

	a, _ := f.agents.Get(ctx, "y")
	assert.False(t, a.LastReceiveAt.IsZero(), "last_receive_at should be set")
}

func TestRunReceiveRedeliveryIsSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sink := &fakeBehavior{receives: true}
	f.registerType("poller", &fakeBehavior{schedulable: true})
	f.registerType("sink", sink)
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	id, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1"})
	require.NoError(t, err)

	// 同一作业投递两次（至少一次语义下的重投）
	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", []int64{id})))
	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", []int64{id})))

	assert.Equal(t, []int64{id}, sink.received, "watermark must filter already-delivered events")
}

func TestRunReceiveFailedBatchIsRedelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	failOn := int64(-1)
	sink := &fakeBehavior{receives: true}
	sink.receiveFn = func(ctx context.Context, run *agent.Run, ev *event.Event) error {
		if ev.ID == failOn {
			return fmt.Errorf("transient failure")
		}
		return nil
	}
	f.registerType("poller", &fakeBehavior{schedulable: true})
	f.registerType("sink", sink)
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	failOn = ids[1]

	err := f.exec.RunJob(ctx, receiveJob(t, "x", "y", ids))
	require.Error(t, err)

	// 批次失败水位不动，重投时整批可见
	wm, _ := f.links.Watermark(ctx, "x", "y")
	assert.Equal(t, int64(0), wm, "failed batch must not advance the watermark")

	// 故障恢复后重投：整批按升序再投一次
	failOn = -1
	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", ids)))
	assert.Equal(t, []int64{ids[0], ids[0], ids[1], ids[2]}, sink.received,
		"redelivery replays the whole batch ascending")
	wm, _ = f.links.Watermark(ctx, "x", "y")
	assert.Equal(t, ids[2], wm)
}

func TestRunReceiveOutOfOrderPayloadDeliversAscending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sink := &fakeBehavior{receives: true}
	f.registerType("poller", &fakeBehavior{schedulable: true})
	f.registerType("sink", sink)
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// 载荷顺序不可信：乱序 id 也必须按升序投递，且一条不丢
	shuffled := []int64{ids[2], ids[0], ids[1]}
	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", shuffled)))

	assert.Equal(t, ids, sink.received, "delivery order must be ascending regardless of payload order")
	wm, _ := f.links.Watermark(ctx, "x", "y")
	assert.Equal(t, ids[2], wm)
}

func TestRunReceiveDeliversWholeBatchInOneCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sink := &fakeBehavior{receives: true}
	f.registerType("poller", &fakeBehavior{schedulable: true})
	f.registerType("sink", sink)
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", ids)))

	assert.Equal(t, 1, sink.batches, "one receive job is one behavior invocation")
	assert.Equal(t, ids, sink.received)
}

func TestRunCheckUnregisteredTypeIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "a1", "vanished")

	// 未注册类型视同不可用：不报错、不重试、不写 Agent 错误日志
	require.NoError(t, f.exec.RunJob(ctx, checkJob(t, "a1")))

	entries, err := f.errlog.ListForAgent(ctx, "a1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunReceiveUnregisteredTypeKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerType("poller", &fakeBehavior{schedulable: true})
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "vanished")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	id, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", []int64{id})))

	wm, _ := f.links.Watermark(ctx, "x", "y")
	assert.Equal(t, int64(0), wm, "events wait until the type is registered")
}

func TestRunReceiveSkipsExpiredEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sink := &fakeBehavior{receives: true}
	f.registerType("poller", &fakeBehavior{schedulable: true})
	f.registerType("sink", sink)
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	expired, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1", ExpiresAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	fresh, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, f.exec.RunJob(ctx, receiveJob(t, "x", "y", []int64{expired, fresh})))

	assert.Equal(t, []int64{fresh}, sink.received, "expired event skipped")
	wm, _ := f.links.Watermark(ctx, "x", "y")
	assert.Equal(t, fresh, wm, "watermark passes over skipped events")
}

func TestRunReceiveDeletedLinkIsNoop(t *testing.T) {
	f := newFixture(t)
	sink := &fakeBehavior{receives: true}
	f.registerType("sink", sink)
	f.addAgent(t, "y", "sink")

	assert.NoError(t, f.exec.RunJob(context.Background(), receiveJob(t, "x", "y", []int64{1})))
	assert.Empty(t, sink.received)
}

func TestRunPropagateEnqueuesReceiveJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerType("poller", &fakeBehavior{schedulable: true})
	f.registerType("sink", &fakeBehavior{receives: true})
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))
	_, err := f.events.Emit(ctx, &event.Event{AgentID: "x", UserID: "u1"})
	require.NoError(t, err)

	job, err := queue.NewJob(queue.QueuePropagation, queue.KindPropagate, queue.PropagatePayload{RequestedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, f.exec.RunJob(ctx, job))

	n, err := f.jobs.CountQueued(ctx, queue.QueueDefault)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "propagate job should enqueue one receive job")
}

func TestCheckThenPropagateThenReceive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerType("poller", &fakeBehavior{schedulable: true, checkFn: func(ctx context.Context, run *agent.Run) error {
		for i := 0; i < 2; i++ {
			if _, err := run.Emit(ctx, map[string]interface{}{"seq": i}); err != nil {
				return err
			}
		}
		return nil
	}})
	sink := &fakeBehavior{receives: true}
	f.registerType("sink", sink)
	f.addAgent(t, "x", "poller")
	f.addAgent(t, "y", "sink")
	require.NoError(t, f.links.Create(ctx, "x", "y"))

	// check 产出两条事件
	require.NoError(t, f.exec.RunJob(ctx, checkJob(t, "x")))

	// 传播扫描入队接收作业
	prop, err := queue.NewJob(queue.QueuePropagation, queue.KindPropagate, queue.PropagatePayload{})
	require.NoError(t, err)
	require.NoError(t, f.exec.RunJob(ctx, prop))

	// 执行接收作业
	claimed, err := f.jobs.Claim(ctx, []string{queue.QueueDefault}, "w1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, f.exec.RunJob(ctx, claimed))

	assert.Len(t, sink.received, 2, "both events delivered exactly once")
	wm, _ := f.links.Watermark(ctx, "x", "y")
	latest, _ := f.events.LatestID(ctx, "x")
	assert.Equal(t, latest, wm, "watermark caught up with source")
}
