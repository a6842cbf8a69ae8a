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

package exec

import (
	"context"

	"github.com/huginn/huginn-sub005/internal/queue"
	"github.com/huginn/huginn-sub005/pkg/tracing"
)

// runPropagate 执行一条 propagate 作业：跑一轮传播扫描。
// 扫描本身幂等，重试无副作用。
func (e *Executor) runPropagate(ctx context.Context, job *queue.Job) error {
	ctx, span := tracing.StartSweepSpan(ctx)
	defer span.End()

	n, err := e.propagator.Sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.Debug("propagation sweep done", "job_id", job.ID, "receive_jobs", n)
	}
	return nil
}
