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
	"testing"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/event"
	"github.com/huginn/huginn-sub005/internal/link"
	"github.com/huginn/huginn-sub005/internal/queue"
)

type propagatorFixture struct {
	agents *agent.StoreMem
	events *event.StoreMem
	links  *link.StoreMem
	jobs   *queue.StoreMem
	p      *Propagator
}

func newPropagatorFixture(t *testing.T) *propagatorFixture {
	t.Helper()
	f := &propagatorFixture{
		agents: agent.NewStoreMem(),
		events: event.NewStoreMem(),
		links:  link.NewStoreMem(),
		jobs:   queue.NewStoreMem(),
	}
	f.p = NewPropagator(f.agents, f.events, f.links, f.jobs, testRegistry(), nil, nil)
	return f
}

func (f *propagatorFixture) emit(t *testing.T, agentID string, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := f.events.Emit(context.Background(), &event.Event{AgentID: agentID, UserID: "u1"})
		if err != nil {
			t.Fatalf("Emit: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestSweepEnqueuesPendingEvents(t *testing.T) {
	f := newPropagatorFixture(t)
	ctx := context.Background()

	addAgent(t, f.agents, "x", "poller", agent.ScheduleNever, false)
	addAgent(t, f.agents, "y", "sink", agent.ScheduleNever, false)
	if err := f.links.Create(ctx, "x", "y"); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	ids := f.emit(t, "x", 2)

	n, err := f.p.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("Sweep enqueued %d jobs, want 1", n)
	}

	jobs := claimAll(t, f.jobs, []string{queue.QueueDefault})
	if len(jobs) != 1 || jobs[0].Kind != queue.KindReceive {
		t.Fatalf("jobs = %+v, want one receive job", jobs)
	}
	var p queue.ReceivePayload
	if err := jobs[0].DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.SourceID != "x" || p.ReceiverID != "y" {
		t.Errorf("payload link = %s->%s", p.SourceID, p.ReceiverID)
	}
	if len(p.EventIDs) != 2 || p.EventIDs[0] != ids[0] || p.EventIDs[1] != ids[1] {
		t.Errorf("EventIDs = %v, want ascending %v", p.EventIDs, ids)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newPropagatorFixture(t)
	ctx := context.Background()

	addAgent(t, f.agents, "x", "poller", agent.ScheduleNever, false)
	addAgent(t, f.agents, "y", "sink", agent.ScheduleNever, false)
	if err := f.links.Create(ctx, "x", "y"); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	f.emit(t, "x", 2)

	for i := 0; i < 3; i++ {
		if _, err := f.p.Sweep(ctx); err != nil {
			t.Fatalf("Sweep #%d: %v", i+1, err)
		}
	}
	n, _ := f.jobs.CountQueued(ctx, queue.QueueDefault)
	if n != 1 {
		t.Errorf("queued receive jobs after repeated sweeps = %d, want 1", n)
	}
}

func TestSweepRespectsWatermark(t *testing.T) {
	f := newPropagatorFixture(t)
	ctx := context.Background()

	addAgent(t, f.agents, "x", "poller", agent.ScheduleNever, false)
	addAgent(t, f.agents, "y", "sink", agent.ScheduleNever, false)
	if err := f.links.Create(ctx, "x", "y"); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	ids := f.emit(t, "x", 3)

	// 前两条已投递
	if err := f.links.AdvanceWatermark(ctx, "x", "y", ids[1]); err != nil {
		t.Fatalf("AdvanceWatermark: %v", err)
	}

	if _, err := f.p.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	jobs := claimAll(t, f.jobs, []string{queue.QueueDefault})
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	var p queue.ReceivePayload
	if err := jobs[0].DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(p.EventIDs) != 1 || p.EventIDs[0] != ids[2] {
		t.Errorf("EventIDs = %v, want only %d (beyond watermark)", p.EventIDs, ids[2])
	}
}

func TestSweepSkipsUnavailableReceiver(t *testing.T) {
	f := newPropagatorFixture(t)
	ctx := context.Background()

	addAgent(t, f.agents, "x", "poller", agent.ScheduleNever, false)
	addAgent(t, f.agents, "y", "sink", agent.ScheduleNever, true) // disabled
	if err := f.links.Create(ctx, "x", "y"); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	f.emit(t, "x", 1)

	n, err := f.p.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("Sweep enqueued %d jobs for disabled receiver, want 0", n)
	}
}

func TestSweepSkipsUnregisteredReceiverType(t *testing.T) {
	f := newPropagatorFixture(t)
	ctx := context.Background()

	addAgent(t, f.agents, "x", "poller", agent.ScheduleNever, false)
	addAgent(t, f.agents, "y", "vanished", agent.ScheduleNever, false)
	if err := f.links.Create(ctx, "x", "y"); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	f.emit(t, "x", 1)

	// 类型未注册视同不可用：跳过链接，不算扫描错误，每轮不刷错误日志
	n, err := f.p.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("Sweep enqueued %d jobs for unregistered receiver type, want 0", n)
	}
}

func TestSweepMultipleLinksIndependent(t *testing.T) {
	f := newPropagatorFixture(t)
	ctx := context.Background()

	addAgent(t, f.agents, "x", "poller", agent.ScheduleNever, false)
	addAgent(t, f.agents, "y1", "sink", agent.ScheduleNever, false)
	addAgent(t, f.agents, "y2", "sink", agent.ScheduleNever, false)
	for _, recv := range []string{"y1", "y2"} {
		if err := f.links.Create(ctx, "x", recv); err != nil {
			t.Fatalf("Create link: %v", err)
		}
	}
	ids := f.emit(t, "x", 1)

	// y1 已消费，y2 尚未
	if err := f.links.AdvanceWatermark(ctx, "x", "y1", ids[0]); err != nil {
		t.Fatalf("AdvanceWatermark: %v", err)
	}

	n, err := f.p.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("Sweep enqueued %d jobs, want 1 (only y2 behind)", n)
	}
	jobs := claimAll(t, f.jobs, []string{queue.QueueDefault})
	var p queue.ReceivePayload
	if err := jobs[0].DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.ReceiverID != "y2" {
		t.Errorf("receiver = %s, want y2", p.ReceiverID)
	}
}

func TestSweepSelfLink(t *testing.T) {
	f := newPropagatorFixture(t)
	ctx := context.Background()

	addAgent(t, f.agents, "loop", "poller", agent.ScheduleNever, false)
	if err := f.links.Create(ctx, "loop", "loop"); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	f.emit(t, "loop", 1)

	n, err := f.p.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("self-link sweep enqueued %d jobs, want 1", n)
	}
}
