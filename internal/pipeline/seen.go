package pipeline

import (
	"context"
	"sync"
	"time"
)

// SeenMarker 프로세스 간 공유 seen-set (pkg/redis.SeenSet)
type SeenMarker interface {
	MarkSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// seenSet 메모리 seen-set. 같은 키의 동시 요청 중 하나만 통과
type seenSet struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newSeenSet() *seenSet {
	return &seenSet{keys: make(map[string]time.Time)}
}

// mark 처음 보는 키면 기록하고 true
func (s *seenSet) mark(key string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = at
	return true
}

// forget 처리하지 못한 메시지를 다시 받을 수 있도록 제거
func (s *seenSet) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// compact cutoff 이전에 기록된 키 제거
func (s *seenSet) compact(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, at := range s.keys {
		if at.Before(cutoff) {
			delete(s.keys, k)
			n++
		}
	}
	return n
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
