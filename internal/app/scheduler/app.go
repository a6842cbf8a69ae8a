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

// Package scheduler 调度进程：时钟节拍、作业派发、锁回收与
// 事件保留清理。传播扫描与作业执行在 worker 进程。
package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/app"
	"github.com/huginn/huginn-sub005/internal/clock"
	"github.com/huginn/huginn-sub005/internal/dispatch"
	"github.com/huginn/huginn-sub005/internal/queue"
	"github.com/huginn/huginn-sub005/pkg/config"
	"github.com/huginn/huginn-sub005/pkg/log"
	"github.com/huginn/huginn-sub005/pkg/metrics"
	"github.com/huginn/huginn-sub005/pkg/tracing"
)

// App 调度进程
type App struct {
	cfg    *config.Config
	logger *log.Logger

	stores     *app.Stores
	wakeup     queue.WakeupQueue
	clk        *clock.Clock
	cleanups   []func()
	metricsSrv *http.Server
}

// New 装配调度进程
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger.Component("scheduler")}

	stores, err := app.BuildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.stores = stores
	a.cleanups = append(a.cleanups, stores.Close)

	wakeup, closeWakeup, err := app.BuildWakeup(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.wakeup = wakeup
	a.cleanups = append(a.cleanups, closeWakeup)

	if cfg.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(tracing.Config{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.cleanups = append(a.cleanups, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		})
	}

	dispatcher := dispatch.NewDispatcher(stores.Agents, stores.Jobs, agent.DefaultRegistry(), wakeup, logger)
	a.clk = clock.New(dispatcher.DispatchSchedule, dispatcher.DispatchPropagation, clock.Options{
		PropagationInterval: config.Duration(cfg.Clock.PropagationInterval, 5*time.Minute),
		Location:            loadLocation(cfg.Clock.Location, logger),
	}, logger)

	return a, nil
}

func loadLocation(name string, logger *log.Logger) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("invalid clock location, falling back to local", "location", name, "error", err)
		return time.Local
	}
	return loc
}

// Run 启动调度进程，阻塞到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if a.cfg.Monitoring.Prometheus.Enable {
		a.startMetricsServer()
	}
	go a.reclaimLoop(ctx)
	go a.expiryLoop(ctx)
	go a.queueDepthLoop(ctx)

	err := a.clk.Start(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func (a *App) close() {
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if err := metrics.WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	a.metricsSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Monitoring.Prometheus.Port),
		Handler: mux,
	}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Info("metrics server listening", "port", a.cfg.Monitoring.Prometheus.Port)
}

// reclaimLoop 周期性把锁过期的 running 作业交还队列
func (a *App) reclaimLoop(ctx context.Context) {
	staleAge := config.Duration(a.cfg.Queue.LockStaleAge, 4*time.Minute)
	every := config.Duration(a.cfg.Worker.ReclaimEvery, time.Minute)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := a.stores.Jobs.ReclaimStale(ctx, time.Now().Add(-staleAge))
			if err != nil {
				a.logger.Error("reclaim stale jobs failed", "error", err)
				continue
			}
			if n > 0 {
				metrics.JobsReclaimedTotal.Add(float64(n))
				a.logger.Warn("reclaimed stale jobs", "count", n)
				if err := a.wakeup.NotifyReady(ctx, queue.QueueDefault); err != nil {
					a.logger.Warn("wakeup notify failed", "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// 每个 Agent 的错误日志保留条数
const errorLogKeep = 200

// expiryLoop 周期性删除过期事件并收缩错误日志
func (a *App) expiryLoop(ctx context.Context) {
	every := config.Duration(a.cfg.Events.ExpirySweepEvery, time.Hour)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := a.stores.Events.DeleteExpired(ctx, time.Now())
			if err != nil {
				a.logger.Error("delete expired events failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("deleted expired events", "count", n)
			}
			a.trimErrorLogs(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) trimErrorLogs(ctx context.Context) {
	agents, err := a.stores.Agents.ListAll(ctx)
	if err != nil {
		a.logger.Error("list agents for log trim failed", "error", err)
		return
	}
	for _, ag := range agents {
		if err := a.stores.ErrLog.Trim(ctx, ag.ID, errorLogKeep); err != nil {
			a.logger.Warn("trim agent error log failed", "agent_id", ag.ID, "error", err)
		}
	}
}

// queueDepthLoop 定期上报各队列积压
func (a *App) queueDepthLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, q := range []string{queue.QueueDefault, queue.QueuePropagation} {
				n, err := a.stores.Jobs.CountQueued(ctx, q)
				if err != nil {
					continue
				}
				metrics.QueueDepth.WithLabelValues(q).Set(float64(n))
			}
		case <-ctx.Done():
			return
		}
	}
}
