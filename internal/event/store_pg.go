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

package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// StorePg Postgres 实现：events 表（bigserial id 提供单调递增的排序键）
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的 Event 存储；dsn 与 agents/links/jobs 同库
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

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *StorePg) Emit(ctx context.Context, e *Event) (int64, error) {
	if e == nil || e.AgentID == "" {
		return 0, pkgerrors.ErrInvalidArg
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO events (agent_id, user_id, payload, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.AgentID, e.UserID, payload, e.CreatedAt, nullTime(e.ExpiresAt)).Scan(&id)
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var payload []byte
	var expiresAt *time.Time
	if err := row.Scan(&e.ID, &e.AgentID, &e.UserID, &payload, &e.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &e.Payload)
	}
	if expiresAt != nil {
		e.ExpiresAt = *expiresAt
	}
	return &e, nil
}

func (s *StorePg) Get(ctx context.Context, id int64) (*Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT id, agent_id, COALESCE(user_id,''), payload, created_at, expires_at FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (s *StorePg) GetByIDs(ctx context.Context, ids []int64) ([]Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, COALESCE(user_id,''), payload, created_at, expires_at
		 FROM events WHERE id = ANY($1) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *StorePg) LatestID(ctx context.Context, agentID string) (int64, error) {
	var latest *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(id) FROM events WHERE agent_id = $1`, agentID).Scan(&latest)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return *latest, nil
}

func (s *StorePg) PendingAfter(ctx context.Context, agentID string, afterID int64, limit int) ([]int64, error) {
	query := `SELECT id FROM events WHERE agent_id = $1 AND id > $2 ORDER BY id ASC`
	args := []interface{}{agentID, afterID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *StorePg) Reemit(ctx context.Context, id int64) (int64, error) {
	var newID int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (agent_id, user_id, payload, created_at, expires_at)
		 SELECT agent_id, user_id, payload, now(), expires_at FROM events WHERE id = $1
		 RETURNING id`, id).Scan(&newID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, pkgerrors.ErrNotFound
		}
		return 0, err
	}
	return newID, nil
}

func (s *StorePg) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM events WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (s *StorePg) DeleteForAgent(ctx context.Context, agentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM events WHERE agent_id = $1`, agentID)
	return err
}
