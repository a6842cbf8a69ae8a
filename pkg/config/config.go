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

package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/huginn/huginn-sub005/pkg/secrets"
)

// Config 应用配置结构体；scheduler 与 worker 共用同一结构，各自加载自己的 yaml
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Clock      ClockConfig      `mapstructure:"clock"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Events     EventsConfig     `mapstructure:"events"`
	Wakeup     WakeupConfig     `mapstructure:"wakeup"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Secrets    secrets.Config   `mapstructure:"secrets"`
}

// StoreConfig 持久层配置：Agent/Event/Link/Job 同库
type StoreConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填；支持 "${ENV_KEY}" 经 secrets 解析
}

// ClockConfig 调度 tick 配置（仅 scheduler 进程使用）
type ClockConfig struct {
	// PropagationInterval 传播扫描 tick 间隔，如 "5m"，空则默认 5m
	PropagationInterval string `mapstructure:"propagation_interval"`
	// Location 小时标签（midnight/noon/3pm）对齐的时区，如 "UTC"、"Asia/Shanghai"；空则本地时区
	Location string `mapstructure:"location"`
}

// QueueConfig 队列重试与锁回收策略
type QueueConfig struct {
	MaxAttempts  int    `mapstructure:"max_attempts"`  // 最大执行次数（含首次），达此后标记永久失败；<=0 时默认 5
	BackoffBase  string `mapstructure:"backoff_base"`  // 指数 backoff 基值，如 "5s"，空则默认 5s
	BackoffMax   string `mapstructure:"backoff_max"`   // backoff 上限，如 "10m"，空则默认 10m
	LockStaleAge string `mapstructure:"lock_stale_age"` // 锁过期阈值，如 "4m"；超过视为 worker 崩溃，可被回收
}

// WorkerConfig Worker 进程配置
type WorkerConfig struct {
	Concurrency  int      `mapstructure:"concurrency"`   // 并发执行数，<=0 使用默认 2
	Queues       []string `mapstructure:"queues"`        // 按优先级轮询的队列列表；空则 ["propagation","default"]
	PollInterval string   `mapstructure:"poll_interval"` // 无任务时的轮询间隔，如 "2s"
	ClaimRate    float64  `mapstructure:"claim_rate"`    // 每秒 Claim 查询上限，<=0 不限
	JobTimeout   string   `mapstructure:"job_timeout"`   // 单个 Job 最大运行时长，如 "10m"
	ReclaimEvery string   `mapstructure:"reclaim_every"` // 锁回收循环间隔，如 "1m"
}

// EventsConfig Event 保留策略
type EventsConfig struct {
	ExpirySweepEvery string `mapstructure:"expiry_sweep_every"` // 过期清理间隔，如 "1h"；空则默认 1h
}

// WakeupConfig Worker 唤醒通道配置；多进程部署用 redis，单进程可 memory
type WakeupConfig struct {
	Type     string `mapstructure:"type"`     // memory | redis | none
	Addr     string `mapstructure:"addr"`     // Redis 地址，如 "localhost:6379"
	DB       int    `mapstructure:"db"`       // Redis DB 编号
	Password string `mapstructure:"password"` // 支持 "${ENV_KEY}"
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 经 secrets 层解析 "${KEY}" 形式的敏感值
	if err := resolveSecrets(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// resolveSecrets 将 DSN、Redis 密码等 "${KEY}" 占位符替换为 secrets store 中的实际值
func resolveSecrets(config *Config) error {
	store, err := secrets.NewStore(config.Secrets)
	if err != nil {
		return fmt.Errorf("初始化 secrets store 失败: %w", err)
	}
	ctx := context.Background()

	if v, err := secrets.Resolve(ctx, store, config.Store.DSN); err == nil {
		config.Store.DSN = v
	} else {
		return fmt.Errorf("解析 store.dsn 失败: %w", err)
	}
	if v, err := secrets.Resolve(ctx, store, config.Wakeup.Password); err == nil {
		config.Wakeup.Password = v
	} else {
		return fmt.Errorf("解析 wakeup.password 失败: %w", err)
	}
	return nil
}

// LoadSchedulerConfig 加载 scheduler 配置（configs/scheduler.yaml）
func LoadSchedulerConfig() (*Config, error) {
	return LoadConfig("configs/scheduler.yaml")
}

// LoadWorkerConfig 加载 Worker 配置（configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}

// Duration 解析 duration 字段；空或非法返回 fallback
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
