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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// StoreMem 内存实现，用于测试与单机演示
type StoreMem struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewStoreMem 创建内存作业存储
func NewStoreMem() *StoreMem {
	return &StoreMem{jobs: make(map[string]*Job)}
}

func (s *StoreMem) Enqueue(ctx context.Context, job *Job) error {
	if job.Queue == "" || job.Kind == "" {
		return pkgerrors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	now := time.Now()
	if cp.RunAt.IsZero() {
		cp.RunAt = now
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.jobs[cp.ID] = &cp
	job.ID = cp.ID
	return nil
}

func (s *StoreMem) Claim(ctx context.Context, queues []string, workerID string, now time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inQueues := make(map[string]bool, len(queues))
	for _, q := range queues {
		inQueues[q] = true
	}

	var candidates []*Job
	for _, j := range s.jobs {
		if j.Status == StatusPending && inQueues[j.Queue] && !j.RunAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.RunAt.Equal(b.RunAt) {
			return a.RunAt.Before(b.RunAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	j := candidates[0]
	j.Status = StatusRunning
	j.Attempts++
	j.LockedBy = workerID
	j.LockToken = uuid.NewString()
	j.LockedAt = now
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (s *StoreMem) locked(jobID, lockToken string) (*Job, error) {
	j, exists := s.jobs[jobID]
	if !exists {
		return nil, pkgerrors.ErrNotFound
	}
	if j.Status != StatusRunning || j.LockToken != lockToken {
		return nil, pkgerrors.ErrLockHeld
	}
	return j, nil
}

func (s *StoreMem) Complete(ctx context.Context, jobID, lockToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.locked(jobID, lockToken); err != nil {
		return err
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *StoreMem) Release(ctx context.Context, jobID, lockToken string, runAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.locked(jobID, lockToken)
	if err != nil {
		return err
	}
	j.Status = StatusPending
	j.RunAt = runAt
	j.LastError = lastError
	j.LockedBy = ""
	j.LockToken = ""
	j.LockedAt = time.Time{}
	j.UpdatedAt = time.Now()
	return nil
}

func (s *StoreMem) MarkFailed(ctx context.Context, jobID, lockToken string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.locked(jobID, lockToken)
	if err != nil {
		return err
	}
	j.Status = StatusFailed
	j.LastError = lastError
	j.LockedBy = ""
	j.LockToken = ""
	j.LockedAt = time.Time{}
	j.UpdatedAt = time.Now()
	return nil
}

func (s *StoreMem) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reclaimed := 0
	for _, j := range s.jobs {
		if j.Status == StatusRunning && j.LockedAt.Before(cutoff) {
			j.Status = StatusPending
			j.LockedBy = ""
			j.LockToken = ""
			j.LockedAt = time.Time{}
			j.UpdatedAt = time.Now()
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (s *StoreMem) CountQueued(ctx context.Context, queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == StatusPending && j.Queue == queue {
			n++
		}
	}
	return n, nil
}

func (s *StoreMem) HasQueued(ctx context.Context, queue, dedupKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Status == StatusPending && j.Queue == queue && j.DedupKey == dedupKey {
			return true, nil
		}
	}
	return false, nil
}

func (s *StoreMem) ListFailed(ctx context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Status == StatusFailed {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *StoreMem) Retry(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, exists := s.jobs[jobID]
	if !exists {
		return pkgerrors.ErrNotFound
	}
	if j.Status != StatusFailed {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "job %s is %s, not failed", jobID, j.Status)
	}
	j.Status = StatusPending
	j.Attempts = 0
	j.RunAt = time.Now()
	j.LastError = ""
	j.UpdatedAt = time.Now()
	return nil
}

func (s *StoreMem) DeleteFailed(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, exists := s.jobs[jobID]
	if !exists {
		return pkgerrors.ErrNotFound
	}
	if j.Status != StatusFailed {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "job %s is %s, not failed", jobID, j.Status)
	}
	delete(s.jobs, jobID)
	return nil
}
