package link

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/huginn/huginn-sub005/pkg/errors"
)

type linkKey struct {
	source   string
	receiver string
}

// StoreMem 内存实现
type StoreMem struct {
	mu    sync.Mutex
	links map[linkKey]*Link
}

// NewStoreMem 创建内存 Link 存储
func NewStoreMem() *StoreMem {
	return &StoreMem{links: make(map[linkKey]*Link)}
}

func (s *StoreMem) Create(ctx context.Context, sourceID, receiverID string) error {
	if sourceID == "" || receiverID == "" {
		return pkgerrors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := linkKey{sourceID, receiverID}
	if _, ok := s.links[k]; ok {
		return nil
	}
	s.links[k] = &Link{SourceID: sourceID, ReceiverID: receiverID, CreatedAt: time.Now()}
	return nil
}

func (s *StoreMem) Delete(ctx context.Context, sourceID, receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, linkKey{sourceID, receiverID})
	return nil
}

func (s *StoreMem) DeleteForAgent(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.links {
		if k.source == agentID || k.receiver == agentID {
			delete(s.links, k)
		}
	}
	return nil
}

func (s *StoreMem) ListAll(ctx context.Context) ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, *l)
	}
	return out, nil
}

func (s *StoreMem) ListForSource(ctx context.Context, sourceID string) ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Link
	for _, l := range s.links {
		if l.SourceID == sourceID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *StoreMem) Watermark(ctx context.Context, sourceID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[linkKey{sourceID, receiverID}]
	if !ok {
		return 0, pkgerrors.ErrNotFound
	}
	return l.LastDeliveredEventID, nil
}

func (s *StoreMem) AdvanceWatermark(ctx context.Context, sourceID, receiverID string, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[linkKey{sourceID, receiverID}]
	if !ok {
		// 链接已被删除，迟到的前移按 no-op 处理
		return nil
	}
	if eventID > l.LastDeliveredEventID {
		l.LastDeliveredEventID = eventID
	}
	return nil
}
