package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSeen records hashes with SETNX so several workers share one inbox.
type RedisSeen struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSeen(rdb redis.UniversalClient, ttl time.Duration) *RedisSeen {
	return &RedisSeen{rdb: rdb, prefix: "inbox:seen:", ttl: ttl}
}

func (s *RedisSeen) MarkNew(ctx context.Context, hashHex string) (bool, error) {
	return s.rdb.SetNX(ctx, s.prefix+hashHex, time.Now().Unix(), s.ttl).Result()
}

// Forget removes a hash so the file is picked up again, e.g. after a failed enqueue.
func (s *RedisSeen) Forget(ctx context.Context, hashHex string) error {
	return s.rdb.Del(ctx, s.prefix+hashHex).Err()
}

// MemorySeen is a process-local Deduper.
type MemorySeen struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemorySeen() *MemorySeen { return &MemorySeen{seen: map[string]struct{}{}} }

func (m *MemorySeen) MarkNew(_ context.Context, hashHex string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[hashHex]; ok {
		return false, nil
	}
	m.seen[hashHex] = struct{}{}
	return true, nil
}
