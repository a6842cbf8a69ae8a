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

// Package clock 调度节拍器。自身无状态：每个分钟边界产生一次
// 调度节拍，另按固定间隔产生传播节拍，判定全部落在节拍时刻本身，
// 错过的节拍不补。
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/huginn/huginn-sub005/pkg/log"
)

// TickFunc 节拍回调，t 为节拍时刻
type TickFunc func(ctx context.Context, t time.Time)

// Options Clock 运行参数
type Options struct {
	// PropagationInterval 传播节拍间隔，默认 5 分钟
	PropagationInterval time.Duration
	// Location 调度标签判定所用时区，默认 time.Local
	Location *time.Location
}

// Clock 产生调度与传播两路节拍
type Clock struct {
	onSchedule    TickFunc
	onPropagation TickFunc
	opts          Options
	logger        *log.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New 创建 Clock；任一回调可为 nil 表示关闭该路节拍
func New(onSchedule, onPropagation TickFunc, opts Options, logger *log.Logger) *Clock {
	if opts.PropagationInterval <= 0 {
		opts.PropagationInterval = 5 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Clock{
		onSchedule:    onSchedule,
		onPropagation: onPropagation,
		opts:          opts,
		logger:        logger.Component("clock"),
		stopCh:        make(chan struct{}),
	}
}

// Start 启动节拍循环，阻塞到 Stop 或 ctx 取消
func (c *Clock) Start(ctx context.Context) error {
	c.logger.Info("clock started",
		"propagation_interval", c.opts.PropagationInterval,
		"location", c.opts.Location.String())

	if c.onSchedule != nil {
		c.wg.Add(1)
		go c.scheduleLoop(ctx)
	}
	if c.onPropagation != nil {
		c.wg.Add(1)
		go c.propagationLoop(ctx)
	}

	select {
	case <-c.stopCh:
		c.wg.Wait()
		return nil
	case <-ctx.Done():
		c.wg.Wait()
		return ctx.Err()
	}
}

// Stop 停止节拍
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// scheduleLoop 对齐到分钟边界触发；节拍之间不排队，回调内耗时
// 超过一分钟会跳过错过的分钟
func (c *Clock) scheduleLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		now := time.Now().In(c.opts.Location)
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			c.onSchedule(ctx, next)
		case <-c.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (c *Clock) propagationLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PropagationInterval)
	defer ticker.Stop()
	for {
		select {
		case t := <-ticker.C:
			c.onPropagation(ctx, t.In(c.opts.Location))
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
