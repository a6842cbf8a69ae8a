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
	"fmt"
	"sort"
	"sync"
)

// BehaviorFactory 按 Agent 类型构造行为实例
type BehaviorFactory func() Behavior

// Registry Agent 类型到行为工厂的映射。注册在进程启动时完成，
// 之后只读，解析不加锁成本可以忽略。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BehaviorFactory
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]BehaviorFactory)}
}

// Register 注册一种 Agent 类型；重复注册同名类型会 panic
func (r *Registry) Register(agentType string, factory BehaviorFactory) {
	if agentType == "" || factory == nil {
		panic("agent: Register with empty type or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[agentType]; dup {
		panic(fmt.Sprintf("agent: Register called twice for type %q", agentType))
	}
	r.factories[agentType] = factory
}

// Resolve 返回类型对应的行为实例；未注册类型返回错误
func (r *Registry) Resolve(agentType string) (Behavior, error) {
	r.mu.RLock()
	factory, ok := r.factories[agentType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: unknown type %q", agentType)
	}
	return factory(), nil
}

// Registered 返回已注册类型名，按字典序
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// defaultRegistry 包级默认注册表，行为包在 init 中向其注册
var defaultRegistry = NewRegistry()

// Register 向默认注册表注册一种 Agent 类型
func Register(agentType string, factory BehaviorFactory) {
	defaultRegistry.Register(agentType, factory)
}

// DefaultRegistry 返回默认注册表
func DefaultRegistry() *Registry {
	return defaultRegistry
}
