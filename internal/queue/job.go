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

// Package queue 持久化作业队列：至少一次投递、按队列并发、
// 失败重试与退避、过期锁回收。
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// 作业种类
const (
	KindCheck     = "check"
	KindReceive   = "receive"
	KindPropagate = "propagate"
)

// 队列名：检查与接收走 default，传播扫描走独立的 propagation 队列
const (
	QueueDefault     = "default"
	QueuePropagation = "propagation"
)

// 作业状态
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusFailed  = "failed"
)

// Job 一条待执行的作业。Attempts 是已执行次数：入队为 0，
// 每次被认领加一；达到 MaxAttempts 后不再重试，转入 failed。
type Job struct {
	ID          string    `json:"id"`
	Queue       string    `json:"queue"`
	Kind        string    `json:"kind"`
	Priority    int       `json:"priority"`
	Payload     []byte    `json:"payload"`
	DedupKey    string    `json:"dedup_key,omitempty"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAt       time.Time `json:"run_at"`
	LockedBy    string    `json:"locked_by,omitempty"`
	LockToken   string    `json:"lock_token,omitempty"`
	LockedAt    time.Time `json:"locked_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewJob 构造一条待入队作业
func NewJob(queue, kind string, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode job payload")
	}
	return &Job{
		ID:      uuid.NewString(),
		Queue:   queue,
		Kind:    kind,
		Payload: raw,
		Status:  StatusPending,
		RunAt:   time.Now(),
	}, nil
}

// CheckPayload 检查作业负载
type CheckPayload struct {
	AgentID string `json:"agent_id"`
}

// ReceivePayload 接收作业负载：某条链接下一批待投递事件
type ReceivePayload struct {
	SourceID   string  `json:"source_id"`
	ReceiverID string  `json:"receiver_id"`
	EventIDs   []int64 `json:"event_ids"`
}

// PropagatePayload 传播扫描作业负载
type PropagatePayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// DecodePayload 解码作业负载到 v
func (j *Job) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return pkgerrors.Wrapf(err, "decode %s job payload", j.Kind)
	}
	return nil
}

// ReceiveDedupKey 同一链接未执行的接收作业共享的去重键
func ReceiveDedupKey(sourceID, receiverID string) string {
	return "receive:" + sourceID + ":" + receiverID
}

// PropagateDedupKey 传播扫描作业的去重键；全局最多一条在排队
func PropagateDedupKey() string {
	return "propagate"
}
