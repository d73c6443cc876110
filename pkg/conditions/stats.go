package conditions

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SenderStats tracks how many messages each sender has sent recently.
type SenderStats interface {
	Record(ctx context.Context, sender string, at time.Time) error
	Count(ctx context.Context, sender string, window time.Duration) (int64, error)
}

// MemorySenderStats keeps sender timestamps in process.
type MemorySenderStats struct {
	mu        sync.Mutex
	now       func() time.Time
	retention time.Duration
	seen      map[string][]time.Time
}

func NewMemorySenderStats() *MemorySenderStats {
	return &MemorySenderStats{
		now:       time.Now,
		retention: 7 * 24 * time.Hour,
		seen:      make(map[string][]time.Time),
	}
}

func (s *MemorySenderStats) Record(_ context.Context, sender string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(sender)
	cutoff := s.now().Add(-s.retention)

	kept := s.seen[key][:0]
	for _, t := range s.seen[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	s.seen[key] = append(kept, at)

	return nil
}

func (s *MemorySenderStats) Count(_ context.Context, sender string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)

	var count int64

	for _, t := range s.seen[strings.ToLower(sender)] {
		if !t.Before(cutoff) {
			count++
		}
	}

	return count, nil
}

// RedisSenderStats stores one sorted set per sender, scored by arrival time.
type RedisSenderStats struct {
	client    redis.UniversalClient
	prefix    string
	now       func() time.Time
	retention time.Duration
}

func NewRedisSenderStats(client redis.UniversalClient, prefix string) *RedisSenderStats {
	if prefix == "" {
		prefix = "mail-automation:senders:"
	}

	return &RedisSenderStats{
		client:    client,
		prefix:    prefix,
		now:       time.Now,
		retention: 7 * 24 * time.Hour,
	}
}

func (s *RedisSenderStats) key(sender string) string {
	return s.prefix + strings.ToLower(sender)
}

func (s *RedisSenderStats) Record(ctx context.Context, sender string, at time.Time) error {
	key := s.key(sender)
	cutoff := s.now().Add(-s.retention).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, s.retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record sender %s: %w", sender, err)
	}

	return nil
}

func (s *RedisSenderStats) Count(ctx context.Context, sender string, window time.Duration) (int64, error) {
	from := s.now().Add(-window).UnixMilli()

	count, err := s.client.ZCount(ctx, s.key(sender), strconv.FormatInt(from, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sender %s: %w", sender, err)
	}

	return count, nil
}
