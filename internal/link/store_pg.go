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

package link

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// StorePg Postgres 实现：links 表，(source_id, receiver_id) 为主键
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的 Link 存储
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

func (s *StorePg) Create(ctx context.Context, sourceID, receiverID string) error {
	if sourceID == "" || receiverID == "" {
		return pkgerrors.ErrInvalidArg
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO links (source_id, receiver_id, last_delivered_event_id, created_at)
		 VALUES ($1, $2, 0, now())
		 ON CONFLICT (source_id, receiver_id) DO NOTHING`,
		sourceID, receiverID)
	return err
}

func (s *StorePg) Delete(ctx context.Context, sourceID, receiverID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM links WHERE source_id = $1 AND receiver_id = $2`, sourceID, receiverID)
	return err
}

func (s *StorePg) DeleteForAgent(ctx context.Context, agentID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM links WHERE source_id = $1 OR receiver_id = $1`, agentID)
	return err
}

func (s *StorePg) list(ctx context.Context, query string, args ...interface{}) ([]Link, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.SourceID, &l.ReceiverID, &l.LastDeliveredEventID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *StorePg) ListAll(ctx context.Context) ([]Link, error) {
	return s.list(ctx,
		`SELECT source_id, receiver_id, last_delivered_event_id, created_at FROM links ORDER BY source_id, receiver_id`)
}

func (s *StorePg) ListForSource(ctx context.Context, sourceID string) ([]Link, error) {
	return s.list(ctx,
		`SELECT source_id, receiver_id, last_delivered_event_id, created_at FROM links WHERE source_id = $1 ORDER BY receiver_id`,
		sourceID)
}

func (s *StorePg) Watermark(ctx context.Context, sourceID, receiverID string) (int64, error) {
	var wm int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_delivered_event_id FROM links WHERE source_id = $1 AND receiver_id = $2`,
		sourceID, receiverID).Scan(&wm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, pkgerrors.ErrNotFound
		}
		return 0, err
	}
	return wm, nil
}

func (s *StorePg) AdvanceWatermark(ctx context.Context, sourceID, receiverID string, eventID int64) error {
	// 订阅已被删除或水位未前移时 0 行受影响，按 no-op 处理
	_, err := s.pool.Exec(ctx,
		`UPDATE links SET last_delivered_event_id = $3
		 WHERE source_id = $1 AND receiver_id = $2 AND last_delivered_event_id < $3`,
		sourceID, receiverID, eventID)
	return err
}
