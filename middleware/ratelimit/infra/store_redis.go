package infra

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

//go:embed token_bucket.lua
var tokenBucketSrc string

var tokenBucketScript = redis.NewScript(tokenBucketSrc)

// RedisStore is a distributed token-bucket backend. A single Lua script
// performs the read-refill-deduct-write cycle atomically on the server, so
// many gateway replicas can enforce one shared budget per key.
//
// Backend failures never fail open: every error is wrapped in
// domain.ErrUnavailable so callers (typically a FallbackStore) can pick a
// conservative fallback.
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
	ttl     time.Duration
	clock   domain.Clock
}

type RedisStoreOption func(*RedisStore)

// WithStorePrefix namespaces every bucket key in Redis (default "ratelimit:").
func WithStorePrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithStoreTimeout bounds each Redis operation (default 2s). A slow backend
// must surface an error, never hang the request.
func WithStoreTimeout(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.timeout = d }
}

// WithStoreTTL sets the idle expiry applied to bucket keys (default 1h).
// Expired keys come back as fresh, full buckets.
func WithStoreTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithStoreClock injects the clock whose now is handed to the script.
func WithStoreClock(c domain.Clock) RedisStoreOption {
	return func(s *RedisStore) { s.clock = c }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:     rdb,
		prefix:  "ratelimit:",
		timeout: 2 * time.Second,
		ttl:     time.Hour,
		clock:   domain.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implements domain.BucketStore.
func (s *RedisStore) Take(ctx context.Context, key string, cost int64, pol domain.Policy) (domain.Outcome, error) {
	return s.run(ctx, key, cost, pol)
}

// Peek implements domain.BucketStore. Cost 0 makes the script skip the
// write, so peeking never changes bucket state.
func (s *RedisStore) Peek(ctx context.Context, key string, pol domain.Policy) (int64, error) {
	out, err := s.run(ctx, key, 0, pol)
	if err != nil {
		return 0, err
	}
	return out.Remaining, nil
}

func (s *RedisStore) run(ctx context.Context, key string, cost int64, pol domain.Policy) (domain.Outcome, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	now := s.clock.Now()
	res, err := tokenBucketScript.Run(ctx, s.rdb, []string{s.prefix + key},
		pol.RPS(),
		pol.Burst,
		now.UnixMicro(),
		cost,
		s.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 4 {
		return domain.Outcome{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrUnavailable, res)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	wait := replyFloat(vals[2])
	reset := replyFloat(vals[3])

	return domain.Outcome{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(wait * float64(time.Second)),
		Reset:      time.UnixMicro(int64(reset * 1e6)),
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

// ResetAll deletes every bucket under the store prefix. SCAN keeps this
// safe to run against a busy instance.
func (s *RedisStore) ResetAll(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// replyFloat reads a number out of a script reply. Redis truncates Lua
// numbers to integers, so the script returns fractional values as strings.
func replyFloat(v interface{}) float64 {
	switch x := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}
