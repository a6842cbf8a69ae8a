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

package main

import (
	"context"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/huginn/huginn-sub005/internal/app/worker"
	"github.com/huginn/huginn-sub005/pkg/config"
	"github.com/huginn/huginn-sub005/pkg/log"
)

func main() {
	// 加载配置
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		stdlog.Fatalf("加载配置失败: %v", err)
	}

	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		stdlog.Fatalf("初始化日志失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化并启动执行进程；SIGINT/SIGTERM 后等在途作业跑完再退出
	app, err := worker.New(ctx, cfg, logger)
	if err != nil {
		stdlog.Fatalf("初始化应用失败: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("worker exited", "error", err)
		return
	}
	logger.Info("worker stopped")
}
