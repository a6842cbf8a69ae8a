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
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// StorePg 基于 PostgreSQL 的 Agent 存储。
// WithLock 依赖 SELECT ... FOR UPDATE 行锁，跨进程同样互斥。
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的 Agent 存储
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

const agentColumns = `id, user_id, type, name, schedule, disabled, options, memory,
	keep_events_for_seconds, last_check_at, last_receive_at, last_event_at, last_error_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		a           Agent
		optionsRaw  []byte
		memoryRaw   []byte
		keepSeconds int64
		lastCheck   *time.Time
		lastReceive *time.Time
		lastEvent   *time.Time
		lastError   *time.Time
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.Name, &a.Schedule, &a.Disabled,
		&optionsRaw, &memoryRaw, &keepSeconds,
		&lastCheck, &lastReceive, &lastEvent, &lastError,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &a.Options); err != nil {
			return nil, pkgerrors.Wrap(err, "decode agent options")
		}
	}
	if len(memoryRaw) > 0 {
		if err := json.Unmarshal(memoryRaw, &a.Memory); err != nil {
			return nil, pkgerrors.Wrap(err, "decode agent memory")
		}
	}
	a.KeepEventsFor = time.Duration(keepSeconds) * time.Second
	a.LastCheckAt = timeOrZero(lastCheck)
	a.LastReceiveAt = timeOrZero(lastReceive)
	a.LastEventAt = timeOrZero(lastEvent)
	a.LastErrorAt = timeOrZero(lastError)
	return &a, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *StorePg) Create(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	optionsRaw, err := json.Marshal(a.Options)
	if err != nil {
		return pkgerrors.Wrap(err, "encode agent options")
	}
	memoryRaw, err := json.Marshal(a.Memory)
	if err != nil {
		return pkgerrors.Wrap(err, "encode agent memory")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (id, user_id, type, name, schedule, disabled, options, memory,
			keep_events_for_seconds, last_check_at, last_receive_at, last_event_at, last_error_at,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())`,
		a.ID, a.UserID, a.Type, a.Name, a.Schedule, a.Disabled, optionsRaw, memoryRaw,
		int64(a.KeepEventsFor/time.Second),
		nullTime(a.LastCheckAt), nullTime(a.LastReceiveAt), nullTime(a.LastEventAt), nullTime(a.LastErrorAt))
	return err
}

func (s *StorePg) Update(ctx context.Context, a *Agent) error {
	optionsRaw, err := json.Marshal(a.Options)
	if err != nil {
		return pkgerrors.Wrap(err, "encode agent options")
	}
	memoryRaw, err := json.Marshal(a.Memory)
	if err != nil {
		return pkgerrors.Wrap(err, "encode agent memory")
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE agents SET user_id = $2, type = $3, name = $4, schedule = $5, disabled = $6,
			options = $7, memory = $8, keep_events_for_seconds = $9, updated_at = now()
		 WHERE id = $1`,
		a.ID, a.UserID, a.Type, a.Name, a.Schedule, a.Disabled, optionsRaw, memoryRaw,
		int64(a.KeepEventsFor/time.Second))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (s *StorePg) Get(ctx context.Context, id string) (*Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *StorePg) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return err
}

func (s *StorePg) list(ctx context.Context, query string, args ...interface{}) ([]Agent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *StorePg) ListAll(ctx context.Context) ([]Agent, error) {
	return s.list(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
}

func (s *StorePg) ListSchedulable(ctx context.Context) ([]Agent, error) {
	return s.list(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE disabled = false AND schedule <> 'never' AND schedule <> '' ORDER BY id`)
}

func (s *StorePg) TouchEvent(ctx context.Context, id string, at time.Time) error {
	return s.touch(ctx, `UPDATE agents SET last_event_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (s *StorePg) TouchError(ctx context.Context, id string, at time.Time) error {
	return s.touch(ctx, `UPDATE agents SET last_error_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (s *StorePg) touch(ctx context.Context, query, id string, at time.Time) error {
	cmd, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (s *StorePg) WithLock(ctx context.Context, id string, fn func(l *Locked) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pkgerrors.ErrNotFound
		}
		return err
	}

	l := &Locked{
		Agent: a,
		saveMemory: func(memory map[string]interface{}) error {
			raw, err := json.Marshal(memory)
			if err != nil {
				return pkgerrors.Wrap(err, "encode agent memory")
			}
			_, err = tx.Exec(ctx,
				`UPDATE agents SET memory = $2, updated_at = now() WHERE id = $1`, id, raw)
			return err
		},
		touchCheck: func(at time.Time) error {
			_, err := tx.Exec(ctx,
				`UPDATE agents SET last_check_at = $2, updated_at = now() WHERE id = $1`, id, at)
			return err
		},
		touchReceive: func(at time.Time) error {
			_, err := tx.Exec(ctx,
				`UPDATE agents SET last_receive_at = $2, updated_at = now() WHERE id = $1`, id, at)
			return err
		},
	}
	if err := fn(l); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
