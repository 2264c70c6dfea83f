package redis

import (
	"context"
	"fmt"
	"time"
)

// SeenSet records message identities with SETNX so replays across
// process restarts and replicas are detected
type SeenSet struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewSeenSet creates a Redis backed seen-set
func NewSeenSet(client *Client, prefix string, ttl time.Duration) *SeenSet {
	if ttl <= 0 {
		ttl = TTLDaily
	}
	return &SeenSet{client: client, prefix: prefix, ttl: ttl}
}

// MarkSeen stores key and reports whether it was new.
// Redis 가 비활성화 되어 있으면 항상 true (호출 측 메모리 set 이 판단)
func (s *SeenSet) MarkSeen(ctx context.Context, key string) (bool, error) {
	if !s.client.Enabled() {
		return true, nil
	}

	ok, err := s.client.Redis().SetNX(ctx, s.key(key), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("seen-set setnx: %w", err)
	}
	return ok, nil
}

// Forget removes key so a redelivered message is processed again
func (s *SeenSet) Forget(ctx context.Context, key string) error {
	if !s.client.Enabled() {
		return nil
	}
	if err := s.client.Redis().Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("seen-set del: %w", err)
	}
	return nil
}

func (s *SeenSet) key(key string) string {
	return fmt.Sprintf("%s:seen:%s", s.prefix, key)
}
