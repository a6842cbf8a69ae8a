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

// Package app scheduler 与 worker 进程共用的装配层
package app

import (
	"context"
	"fmt"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/event"
	"github.com/huginn/huginn-sub005/internal/link"
	"github.com/huginn/huginn-sub005/internal/queue"
	"github.com/huginn/huginn-sub005/pkg/config"
)

// Stores 按配置构建的全部持久层句柄
type Stores struct {
	Agents agent.Store
	Events event.Store
	Links  link.Store
	Jobs   queue.Store
	ErrLog agent.ErrorLog

	closers []func()
}

// Close 释放全部连接
func (s *Stores) Close() {
	for _, fn := range s.closers {
		fn()
	}
}

// BuildStores 按 store.type 构建持久层：memory 或 postgres。
// postgres 时各存储各持一个连接池，错误留痕独立于执行事务。
func BuildStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Store.Type {
	case "", "memory":
		agents := agent.NewStoreMem()
		return &Stores{
			Agents: agents,
			Events: event.NewStoreMem(),
			Links:  link.NewStoreMem(),
			Jobs:   queue.NewStoreMem(),
			ErrLog: agent.NewErrorLogMem(agents),
		}, nil

	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for postgres")
		}
		s := &Stores{}
		agents, err := agent.NewStorePg(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open agent store: %w", err)
		}
		s.Agents = agents
		s.closers = append(s.closers, agents.Close)

		events, err := event.NewStorePg(ctx, cfg.Store.DSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open event store: %w", err)
		}
		s.Events = events
		s.closers = append(s.closers, events.Close)

		links, err := link.NewStorePg(ctx, cfg.Store.DSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open link store: %w", err)
		}
		s.Links = links
		s.closers = append(s.closers, links.Close)

		jobs, err := queue.NewStorePg(ctx, cfg.Store.DSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open job store: %w", err)
		}
		s.Jobs = jobs
		s.closers = append(s.closers, jobs.Close)

		errlog, err := agent.NewErrorLogPg(ctx, cfg.Store.DSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open error log: %w", err)
		}
		s.ErrLog = errlog
		s.closers = append(s.closers, errlog.Close)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// BuildWakeup 按配置构建唤醒通道
func BuildWakeup(ctx context.Context, cfg *config.Config) (queue.WakeupQueue, func(), error) {
	switch cfg.Wakeup.Type {
	case "", "none":
		return queue.WakeupNone{}, func() {}, nil
	case "memory":
		return queue.NewWakeupMem(), func() {}, nil
	case "redis":
		w, err := queue.NewWakeupRedis(ctx, queue.WakeupRedisConfig{
			Addr:     cfg.Wakeup.Addr,
			Password: cfg.Wakeup.Password,
			DB:       cfg.Wakeup.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect wakeup redis: %w", err)
		}
		return w, func() { w.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown wakeup type %q", cfg.Wakeup.Type)
	}
}
