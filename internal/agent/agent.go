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

// Package agent 定义 Agent 记录、行为接口与注册表。
//
// Agent 是调度与事件传播的基本单元：每个 Agent 归属一个用户，
// 携带类型、调度标签、配置与持久化记忆。行为（Behavior）按类型
// 注册，运行期通过 Registry 解析。
package agent

import (
	"time"
)

// Agent 持久化记录
type Agent struct {
	ID       string                 `json:"id"`
	UserID   string                 `json:"user_id"`
	Type     string                 `json:"type"`
	Name     string                 `json:"name"`
	Schedule Schedule               `json:"schedule"`
	Disabled bool                   `json:"disabled"`
	Options  map[string]interface{} `json:"options"`
	Memory   map[string]interface{} `json:"memory"`

	KeepEventsFor time.Duration `json:"keep_events_for"`

	LastCheckAt        time.Time `json:"last_check_at"`
	LastReceiveAt      time.Time `json:"last_receive_at"`
	LastEventAt        time.Time `json:"last_event_at"`
	LastErrorAt        time.Time `json:"last_error_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Available 报告 Agent 是否可参与调度与事件投递。
// 被禁用的 Agent 不检查、不接收、也不作为传播的接收端。
func (a *Agent) Available() bool {
	return !a.Disabled
}

// EventExpiry 返回此刻发出的事件的过期时间；保留期为零表示永不过期。
func (a *Agent) EventExpiry(now time.Time) time.Time {
	if a.KeepEventsFor <= 0 {
		return time.Time{}
	}
	return now.Add(a.KeepEventsFor)
}
