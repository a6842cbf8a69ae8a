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

// Package worker 作业执行进程：认领 check/receive/propagate 作业
// 并执行。可与 scheduler 同机也可横向扩多实例。
package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/huginn/huginn-sub005/internal/agent"
	"github.com/huginn/huginn-sub005/internal/app"
	"github.com/huginn/huginn-sub005/internal/dispatch"
	"github.com/huginn/huginn-sub005/internal/exec"
	"github.com/huginn/huginn-sub005/internal/queue"
	"github.com/huginn/huginn-sub005/pkg/config"
	"github.com/huginn/huginn-sub005/pkg/log"
	"github.com/huginn/huginn-sub005/pkg/metrics"
	"github.com/huginn/huginn-sub005/pkg/tracing"
)

// App 作业执行进程
type App struct {
	cfg    *config.Config
	logger *log.Logger

	stores     *app.Stores
	worker     *queue.Worker
	cleanups   []func()
	metricsSrv *http.Server
}

// New 装配执行进程
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger.Component("worker-app")}

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

	registry := agent.DefaultRegistry()
	propagator := dispatch.NewPropagator(stores.Agents, stores.Events, stores.Links, stores.Jobs, registry, wakeup, logger)
	executor := exec.NewExecutor(stores.Agents, stores.Events, stores.Links, stores.ErrLog, registry, propagator, logger)

	a.worker = queue.NewWorker(stores.Jobs, wakeup, executor.RunJob, queue.WorkerOptions{
		Queues:       cfg.Worker.Queues,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: config.Duration(cfg.Worker.PollInterval, 2*time.Second),
		JobTimeout:   config.Duration(cfg.Worker.JobTimeout, 10*time.Minute),
		ClaimRate:    cfg.Worker.ClaimRate,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		BackoffBase:  config.Duration(cfg.Queue.BackoffBase, 5*time.Second),
		BackoffMax:   config.Duration(cfg.Queue.BackoffMax, 10*time.Minute),
	}, logger)

	return a, nil
}

// Run 启动执行进程，阻塞到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if a.cfg.Monitoring.Prometheus.Enable {
		a.startMetricsServer()
	}

	err := a.worker.Start(ctx)
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
