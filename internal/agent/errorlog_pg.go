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

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrorLogPg 基于 PostgreSQL 的错误留痕。
// 持有独立连接池：写入不参与任何执行事务。
type ErrorLogPg struct {
	pool *pgxpool.Pool
}

// NewErrorLogPg 创建基于 PostgreSQL 的错误留痕
func NewErrorLogPg(ctx context.Context, dsn string) (*ErrorLogPg, error) {
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
	return &ErrorLogPg{pool: pool}, nil
}

// Close 关闭连接池
func (e *ErrorLogPg) Close() {
	e.pool.Close()
}

func (e *ErrorLogPg) Write(ctx context.Context, agentID, userID, message string) error {
	_, err := e.pool.Exec(ctx,
		`INSERT INTO agent_logs (agent_id, user_id, message, created_at) VALUES ($1, $2, $3, now())`,
		agentID, userID, message)
	if err != nil {
		return err
	}
	// Agent 可能已被删除；留痕成功即算成功
	_, _ = e.pool.Exec(ctx,
		`UPDATE agents SET last_error_at = now(), updated_at = now() WHERE id = $1`, agentID)
	return nil
}

func (e *ErrorLogPg) ListForAgent(ctx context.Context, agentID string, limit int) ([]ErrorEntry, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT id, agent_id, user_id, message, created_at FROM agent_logs
		 WHERE agent_id = $1 ORDER BY id DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ErrorEntry
	for rows.Next() {
		var entry ErrorEntry
		if err := rows.Scan(&entry.ID, &entry.AgentID, &entry.UserID, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (e *ErrorLogPg) Trim(ctx context.Context, agentID string, keep int) error {
	_, err := e.pool.Exec(ctx,
		`DELETE FROM agent_logs
		 WHERE agent_id = $1 AND id NOT IN (
			SELECT id FROM agent_logs WHERE agent_id = $1 ORDER BY id DESC LIMIT $2)`,
		agentID, keep)
	return err
}
