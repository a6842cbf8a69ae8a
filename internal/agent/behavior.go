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

	"github.com/huginn/huginn-sub005/internal/event"
)

// Run 一次行为执行的运行环境：读取配置与记忆、发出事件。
// 记忆的修改在执行成功后由调用方统一持久化。
type Run struct {
	Agent  *Agent
	Memory map[string]interface{}

	emit func(ctx context.Context, payload map[string]interface{}) (*event.Event, error)

	emitted int
}

// Emit 以当前 Agent 为来源发出一条事件
func (r *Run) Emit(ctx context.Context, payload map[string]interface{}) (*event.Event, error) {
	ev, err := r.emit(ctx, payload)
	if err != nil {
		return nil, err
	}
	r.emitted++
	return ev, nil
}

// Emitted 返回本次执行已发出的事件数
func (r *Run) Emitted() int {
	return r.emitted
}

// NewRun 构造一次执行环境；emit 为空时发出事件会 panic，
// 仅用于测试不发事件的行为。
func NewRun(a *Agent, emit func(ctx context.Context, payload map[string]interface{}) (*event.Event, error)) *Run {
	memory := a.Memory
	if memory == nil {
		memory = map[string]interface{}{}
	}
	return &Run{Agent: a, Memory: memory, emit: emit}
}

// Behavior 一种 Agent 类型的行为实现。
// Check 在调度到期时执行；Receive 接收一批按 id 升序排列的上游
// 事件。返回错误表示本次执行失败，作业会按退避策略重试，
// 整批事件会重新投递，实现需容忍重复。
type Behavior interface {
	// Check 周期性检查；不支持调度的类型应让 CanBeScheduled 返回 false
	Check(ctx context.Context, run *Run) error
	// Receive 处理一批来自上游 Agent 的事件，按 id 升序
	Receive(ctx context.Context, run *Run, events []event.Event) error
	// CanBeScheduled 报告该类型是否参与周期调度
	CanBeScheduled() bool
	// CanReceiveEvents 报告该类型是否接收上游事件
	CanReceiveEvents() bool
}
