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
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// StorePg 基于 PostgreSQL 的作业存储。
// 认领走 FOR UPDATE SKIP LOCKED，多 worker 进程互不阻塞。
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的作业存储
func NewStorePg(ctx context.Context, dsn string) (*StorePg, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &StorePg{pool: pool}, nil
}

// Close 关闭连接池
func (s *StorePg) Close() {
	s.pool.Close()
}

const jobColumns = `id, queue, kind, priority, payload, dedup_key, status, attempts, max_attempts,
	run_at, locked_by, lock_token, locked_at, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j        Job
		lockedAt *time.Time
	)
	err := row.Scan(&j.ID, &j.Queue, &j.Kind, &j.Priority, &j.Payload, &j.DedupKey,
		&j.Status, &j.Attempts, &j.MaxAttempts, &j.RunAt,
		&j.LockedBy, &j.LockToken, &lockedAt, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lockedAt != nil {
		j.LockedAt = *lockedAt
	}
	return &j, nil
}

func (s *StorePg) Enqueue(ctx context.Context, job *Job) error {
	if job.Queue == "" || job.Kind == "" {
		return pkgerrors.ErrInvalidArg
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, queue, kind, priority, payload, dedup_key, status, attempts, max_attempts,
			run_at, locked_by, lock_token, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, $7, $8, '', '', '', now(), now())`,
		job.ID, job.Queue, job.Kind, job.Priority, job.Payload, job.DedupKey,
		job.MaxAttempts, runAt)
	return err
}

func (s *StorePg) Claim(ctx context.Context, queues []string, workerID string, now time.Time) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs
		 SET status = 'running', attempts = attempts + 1,
			locked_by = $2, lock_token = $3, locked_at = $4, updated_at = now()
		 WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND queue = ANY($1) AND run_at <= $4
			ORDER BY priority DESC, run_at ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED)
		 RETURNING `+jobColumns,
		queues, workerID, uuid.NewString(), now)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

func (s *StorePg) Complete(ctx context.Context, jobID, lockToken string) error {
	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND status = 'running' AND lock_token = $2`,
		jobID, lockToken)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrLockHeld
	}
	return nil
}

func (s *StorePg) Release(ctx context.Context, jobID, lockToken string, runAt time.Time, lastError string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'pending', run_at = $3, last_error = $4,
			locked_by = '', lock_token = '', locked_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'running' AND lock_token = $2`,
		jobID, lockToken, runAt, lastError)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrLockHeld
	}
	return nil
}

func (s *StorePg) MarkFailed(ctx context.Context, jobID, lockToken string, lastError string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'failed', last_error = $3,
			locked_by = '', lock_token = '', locked_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'running' AND lock_token = $2`,
		jobID, lockToken, lastError)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrLockHeld
	}
	return nil
}

func (s *StorePg) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'pending', locked_by = '', lock_token = '', locked_at = NULL, updated_at = now()
		 WHERE status = 'running' AND locked_at < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (s *StorePg) CountQueued(ctx context.Context, queue string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE status = 'pending' AND queue = $1`, queue).Scan(&n)
	return n, err
}

func (s *StorePg) HasQueued(ctx context.Context, queue, dedupKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM jobs WHERE status = 'pending' AND queue = $1 AND dedup_key = $2)`,
		queue, dedupKey).Scan(&exists)
	return exists, err
}

func (s *StorePg) ListFailed(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = 'failed' ORDER BY updated_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *StorePg) Retry(ctx context.Context, jobID string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'pending', attempts = 0, run_at = now(), last_error = '', updated_at = now()
		 WHERE id = $1 AND status = 'failed'`,
		jobID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (s *StorePg) DeleteFailed(ctx context.Context, jobID string) error {
	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND status = 'failed'`, jobID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
