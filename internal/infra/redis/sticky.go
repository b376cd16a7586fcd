package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultStickyTTL = 30 * time.Minute

// StickyStore keeps the last successful endpoint per call class in Redis so
// every process in a fleet prefers the same endpoint.
type StickyStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStickyStore creates a store on client. Entries expire after ttl, or
// 30 minutes when ttl is zero.
func NewStickyStore(client *Client, prefix string, ttl time.Duration) *StickyStore {
	if prefix == "" {
		prefix = "livecluster"
	}
	if ttl <= 0 {
		ttl = defaultStickyTTL
	}
	return &StickyStore{rdb: client.rdb, prefix: prefix, ttl: ttl}
}

// Key helpers
func (s *StickyStore) stickyKey(class string) string {
	return fmt.Sprintf("%s:sticky:%s", s.prefix, class)
}

// Get returns the sticky endpoint of class, or "" when none is recorded.
func (s *StickyStore) Get(ctx context.Context, class string) (string, error) {
	val, err := s.rdb.Get(ctx, s.stickyKey(class)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return val, nil
}

// Put records endpointID for class and refreshes the expiry.
func (s *StickyStore) Put(ctx context.Context, class, endpointID string) error {
	if err := s.rdb.Set(ctx, s.stickyKey(class), endpointID, s.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Delete forgets the sticky endpoint of class.
func (s *StickyStore) Delete(ctx context.Context, class string) error {
	return s.rdb.Del(ctx, s.stickyKey(class)).Err()
}
