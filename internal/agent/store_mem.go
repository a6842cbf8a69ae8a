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
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// StoreMem 内存实现，用于测试与单机演示。
// 行级锁用每 Agent 一把 mutex 模拟。
type StoreMem struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	locks  map[string]*sync.Mutex
}

// NewStoreMem 创建内存 Agent 存储
func NewStoreMem() *StoreMem {
	return &StoreMem{
		agents: make(map[string]*Agent),
		locks:  make(map[string]*sync.Mutex),
	}
}

func cloneAgent(a *Agent) *Agent {
	cp := *a
	cp.Options = cloneMap(a.Options)
	cp.Memory = cloneMap(a.Memory)
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *StoreMem) Create(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[a.ID]; exists {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "agent %s already exists", a.ID)
	}
	now := time.Now()
	cp := cloneAgent(a)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.agents[a.ID] = cp
	s.locks[a.ID] = &sync.Mutex{}
	return nil
}

func (s *StoreMem) Update(ctx context.Context, a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, exists := s.agents[a.ID]
	if !exists {
		return pkgerrors.ErrNotFound
	}
	cp := cloneAgent(a)
	cp.CreatedAt = old.CreatedAt
	cp.UpdatedAt = time.Now()
	s.agents[a.ID] = cp
	return nil
}

func (s *StoreMem) Get(ctx context.Context, id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, exists := s.agents[id]
	if !exists {
		return nil, pkgerrors.ErrNotFound
	}
	return cloneAgent(a), nil
}

func (s *StoreMem) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, id)
	delete(s.locks, id)
	return nil
}

func (s *StoreMem) ListAll(ctx context.Context) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, *cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *StoreMem) ListSchedulable(ctx context.Context) ([]Agent, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.Available() && a.Schedule != ScheduleNever && a.Schedule != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *StoreMem) TouchEvent(ctx context.Context, id string, at time.Time) error {
	return s.touch(id, func(a *Agent) { a.LastEventAt = at })
}

func (s *StoreMem) TouchError(ctx context.Context, id string, at time.Time) error {
	return s.touch(id, func(a *Agent) { a.LastErrorAt = at })
}

func (s *StoreMem) touch(id string, fn func(a *Agent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, exists := s.agents[id]
	if !exists {
		return pkgerrors.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func (s *StoreMem) WithLock(ctx context.Context, id string, fn func(l *Locked) error) error {
	s.mu.RLock()
	lock, exists := s.locks[id]
	s.mu.RUnlock()
	if !exists {
		return pkgerrors.ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// 回调内的修改先落在暂存值上，fn 成功后写回
	pending := cloneAgent(a)
	l := &Locked{
		Agent: a,
		saveMemory: func(memory map[string]interface{}) error {
			pending.Memory = cloneMap(memory)
			return nil
		},
		touchCheck: func(at time.Time) error {
			pending.LastCheckAt = at
			return nil
		},
		touchReceive: func(at time.Time) error {
			pending.LastReceiveAt = at
			return nil
		},
	}
	if err := fn(l); err != nil {
		return err
	}
	return s.Update(ctx, pending)
}
