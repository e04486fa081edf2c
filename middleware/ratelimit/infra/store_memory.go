package infra

import (
	"context"
	"sync"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// MemoryStore is an in-process token-bucket backend with per-key state and
// periodic cleanup of idle buckets.
//
// State is local to the process, so each replica enforces its own budget.
// Use RedisStore (usually wrapped in a FallbackStore) when several replicas
// must share one budget.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	clock        domain.Clock
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucket struct {
	tokens   float64
	last     time.Time // last refill
	lastSeen time.Time // last access, for idle eviction
}

type MemoryOption func(*MemoryStore)

func WithClock(c domain.Clock) MemoryOption {
	return func(s *MemoryStore) { s.clock = c }
}

func WithIdleTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		buckets:      make(map[string]*bucket),
		clock:        domain.SystemClock{},
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implements domain.BucketStore. The whole read-refill-deduct cycle
// runs under one lock, so concurrent callers on the same key never jointly
// over-admit past the burst.
func (s *MemoryStore) Take(_ context.Context, key string, cost int64, pol domain.Policy) (domain.Outcome, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		// lazily created buckets start full
		b = &bucket{tokens: float64(pol.Burst), last: now}
		s.buckets[key] = b
	}
	b.lastSeen = now
	refill(b, now, pol)

	if b.tokens >= float64(cost) {
		b.tokens -= float64(cost)
		return allowedOutcome(b.tokens, now, pol), nil
	}
	return deniedOutcome(b.tokens, float64(cost), now, pol), nil
}

// Peek implements domain.BucketStore. It applies the refill math to a copy,
// so two peeks with no intervening Take report the same value the next Take
// would see.
func (s *MemoryStore) Peek(_ context.Context, key string, pol domain.Policy) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		return pol.Burst, nil
	}
	snap := *b
	refill(&snap, now, pol)
	return int64(snap.tokens), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

func (s *MemoryStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*bucket)
	return nil
}

// refill adds tokens proportionally to the time elapsed since the last
// refill, capped at the burst. Continuous refill means no sweep timer is
// needed for the algorithm itself.
func refill(b *bucket, now time.Time, pol domain.Policy) {
	elapsed := now.Sub(b.last)
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens += elapsed.Seconds() * pol.RPS()
	if b.tokens > float64(pol.Burst) {
		b.tokens = float64(pol.Burst)
	}
	b.last = now
}

func allowedOutcome(tokens float64, now time.Time, pol domain.Policy) domain.Outcome {
	toFull := time.Duration((float64(pol.Burst) - tokens) / pol.RPS() * float64(time.Second))
	return domain.Outcome{
		Allowed:    true,
		Remaining:  int64(tokens),
		RetryAfter: toFull,
		Reset:      now.Add(toFull),
	}
}

func deniedOutcome(tokens, cost float64, now time.Time, pol domain.Policy) domain.Outcome {
	wait := time.Duration((cost - tokens) / pol.RPS() * float64(time.Second))
	return domain.Outcome{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: wait,
		Reset:      now.Add(wait),
	}
}

// Cleanup drops buckets idle for longer than the TTL. A dropped key gets a
// fresh, full bucket on its next access.
func (s *MemoryStore) Cleanup() {
	cutoff := s.clock.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, k)
		}
	}
}

// StartJanitor cleans idle buckets periodically until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
