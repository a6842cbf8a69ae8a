package event

import (
	"context"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

// StoreMem 内存实现：map + 原子递增 id；单进程测试与开发用
type StoreMem struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*Event
}

// NewStoreMem 创建内存 Event 存储
func NewStoreMem() *StoreMem {
	return &StoreMem{byID: make(map[int64]*Event)}
}

func (s *StoreMem) Emit(ctx context.Context, e *Event) (int64, error) {
	if e == nil || e.AgentID == "" {
		return 0, pkgerrors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *e
	cp.ID = s.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.byID[cp.ID] = &cp
	out := cp
	*e = out
	return cp.ID, nil
}

func (s *StoreMem) Get(ctx context.Context, id int64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *StoreMem) GetByIDs(ctx context.Context, ids []int64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *StoreMem) LatestID(ctx context.Context, agentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest int64
	for id, e := range s.byID {
		if e.AgentID == agentID && id > latest {
			latest = id
		}
	}
	return latest, nil
}

func (s *StoreMem) PendingAfter(ctx context.Context, agentID string, afterID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, e := range s.byID {
		if e.AgentID == agentID && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *StoreMem) Reemit(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	src, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return 0, pkgerrors.ErrNotFound
	}
	cp := Event{
		AgentID:   src.AgentID,
		UserID:    src.UserID,
		Payload:   src.Payload,
		ExpiresAt: src.ExpiresAt,
	}
	s.mu.Unlock()
	return s.Emit(ctx, &cp)
}

func (s *StoreMem) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for id, e := range s.byID {
		if e.Expired(now) {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

func (s *StoreMem) DeleteForAgent(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.byID {
		if e.AgentID == agentID {
			delete(s.byID, id)
		}
	}
	return nil
}
