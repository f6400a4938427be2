package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/qrlinks/internal/ratelimit"
)

// RateLimitMemoryStore keeps sliding-window timestamps per key in process.
// Counts are not shared between instances.
type RateLimitMemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return NewRateLimitMemoryStoreWithClock(time.Now)
}

// NewRateLimitMemoryStoreWithClock creates a store reading time from now.
func NewRateLimitMemoryStoreWithClock(now func() time.Time) *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		requests: make(map[string][]time.Time),
		now:      now,
	}
}

func (s *RateLimitMemoryStore) Record(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	// Timestamps are appended in order, so expired ones form a prefix.
	timestamps := s.requests[key]
	first := 0

	for first < len(timestamps) && !timestamps[first].After(cutoff) {
		first++
	}

	valid := append(timestamps[first:], now)
	s.requests[key] = valid

	return int64(len(valid)), nil
}

var _ ratelimit.Store = (*RateLimitMemoryStore)(nil)
