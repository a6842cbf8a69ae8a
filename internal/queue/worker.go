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

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/huginn/huginn-sub005/pkg/log"
	"github.com/huginn/huginn-sub005/pkg/metrics"
)

// RunJobFunc 执行一条作业；返回错误则按退避策略重试
type RunJobFunc func(ctx context.Context, job *Job) error

// WorkerOptions Worker 运行参数
type WorkerOptions struct {
	// WorkerID 进程标识；为空时自动生成
	WorkerID string
	// Queues 认领的队列，排在前面的不优先——优先级由作业自身的 Priority 决定
	Queues []string
	// Concurrency 同时在执行的作业上限
	Concurrency int
	// PollInterval 无唤醒时的轮询兜底间隔
	PollInterval time.Duration
	// JobTimeout 单条作业的执行超时；0 表示不限
	JobTimeout time.Duration
	// ClaimRate 每秒认领上限；0 表示不限
	ClaimRate float64
	// MaxAttempts 作业总执行次数上限（含首次）
	MaxAttempts int
	// BackoffBase / BackoffMax 重试退避参数
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Worker 持续认领并执行作业。
// 一个进程一个 Worker；Concurrency 控制进程内并行度。
type Worker struct {
	store  Store
	wakeup WakeupQueue
	run    RunJobFunc
	opts   WorkerOptions
	logger *log.Logger

	limiter chan struct{}
	claims  *rate.Limiter

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker 创建 Worker；wakeup 可为 nil，此时只靠轮询
func NewWorker(store Store, wakeup WakeupQueue, run RunJobFunc, opts WorkerOptions, logger *log.Logger) *Worker {
	if opts.WorkerID == "" {
		opts.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if len(opts.Queues) == 0 {
		opts.Queues = []string{QueueDefault, QueuePropagation}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if wakeup == nil {
		wakeup = WakeupNone{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	claims := rate.NewLimiter(rate.Inf, 1)
	if opts.ClaimRate > 0 {
		claims = rate.NewLimiter(rate.Limit(opts.ClaimRate), 1)
	}
	return &Worker{
		store:   store,
		wakeup:  wakeup,
		run:     run,
		opts:    opts,
		logger:  logger.Component("worker"),
		limiter: make(chan struct{}, opts.Concurrency),
		claims:  claims,
		stopCh:  make(chan struct{}),
	}
}

// Start 启动主循环，阻塞到 Stop 被调用或 ctx 取消
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started",
		"worker_id", w.opts.WorkerID,
		"queues", w.opts.Queues,
		"concurrency", w.opts.Concurrency)

	for {
		select {
		case <-w.stopCh:
			w.wg.Wait()
			return nil
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		default:
		}

		claimed, err := w.claimOne(ctx)
		if err != nil {
			w.logger.Error("claim job failed", "error", err)
			claimed = false
		}
		if claimed {
			// 队列里可能还有，立刻再试
			continue
		}

		// 队列空或并发打满：等唤醒，轮询兜底
		if _, err := w.wakeup.Receive(ctx, w.opts.PollInterval); err != nil && ctx.Err() == nil {
			w.logger.Error("wakeup receive failed", "error", err)
		}
	}
}

// Stop 停止认领并等待在途作业结束
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) claimOne(ctx context.Context) (bool, error) {
	select {
	case w.limiter <- struct{}{}:
	default:
		return false, nil
	}

	if err := w.claims.Wait(ctx); err != nil {
		<-w.limiter
		return false, nil
	}

	job, err := w.store.Claim(ctx, w.opts.Queues, w.opts.WorkerID, time.Now())
	if err != nil || job == nil {
		<-w.limiter
		return false, err
	}

	w.wg.Add(1)
	metrics.WorkerBusy.WithLabelValues(w.opts.WorkerID).Inc()
	go func() {
		defer func() {
			metrics.WorkerBusy.WithLabelValues(w.opts.WorkerID).Dec()
			<-w.limiter
			w.wg.Done()
		}()
		w.execute(ctx, job)
	}()
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *Job) {
	runCtx := ctx
	if w.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.opts.JobTimeout)
		defer cancel()
	}

	err := w.runSafely(runCtx, job)
	if err == nil {
		metrics.JobTotal.WithLabelValues(job.Kind, "completed").Inc()
		if cerr := w.store.Complete(ctx, job.ID, job.LockToken); cerr != nil {
			// 租约已被回收，作业会被重新投递；执行侧的幂等保证兜底
			w.logger.Warn("complete after lost lease", "job_id", job.ID, "error", cerr)
		}
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.opts.MaxAttempts
	}
	if job.Attempts >= maxAttempts {
		metrics.JobTotal.WithLabelValues(job.Kind, "failed").Inc()
		w.logger.Error("job failed permanently",
			"job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts, "error", err)
		if ferr := w.store.MarkFailed(ctx, job.ID, job.LockToken, err.Error()); ferr != nil {
			w.logger.Warn("mark failed after lost lease", "job_id", job.ID, "error", ferr)
		}
		return
	}

	delay := Backoff(w.opts.BackoffBase, w.opts.BackoffMax, job.Attempts)
	metrics.JobTotal.WithLabelValues(job.Kind, "retried").Inc()
	w.logger.Warn("job failed, will retry",
		"job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts, "delay", delay, "error", err)
	if rerr := w.store.Release(ctx, job.ID, job.LockToken, time.Now().Add(delay), err.Error()); rerr != nil {
		w.logger.Warn("release after lost lease", "job_id", job.ID, "error", rerr)
	}
}

func (w *Worker) runSafely(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return w.run(ctx, job)
}
