package domain

import (
	"context"
	"errors"
	"time"
)

// Class names one limit policy scope. Each class owns its own bucket-key
// namespace: draining a caller's bucket in one class never affects the same
// caller in another class.
type Class string

const (
	ClassAPI  Class = "api"
	ClassAuth Class = "auth"
)

// ClassForTier returns the bucket-key namespace for tiered limiting.
func ClassForTier(t Tier) Class {
	return Class("tier:" + t.String())
}

// BucketKey builds the store key for an identifier within a class.
// Identifiers follow the "ip:<addr>" / "user:<subject>" convention, so a
// full key looks like "auth:ip:1.2.3.4" or "tier:pro:user:42".
func BucketKey(c Class, identifier string) string {
	return string(c) + ":" + identifier
}

// Outcome is the result of one consumption attempt.
type Outcome struct {
	Allowed bool
	// Remaining is the number of whole tokens left after the decision.
	// It is always 0 when the request was denied.
	Remaining int64
	// RetryAfter is the wait until the next token becomes available when
	// denied. When allowed it is the time until the bucket is full again,
	// which callers use only informationally.
	RetryAfter time.Duration
	// Reset is the instant the bucket is expected to be usable again:
	// full refill when allowed, next token when denied.
	Reset time.Time
}

// ErrUnavailable marks a store backend that could not be reached or did not
// answer in time. Callers must not treat it as permission to admit traffic.
var ErrUnavailable = errors.New("bucket store unavailable")

// BucketStore owns bucket state and is the sole owner of its concurrency
// discipline. Take must be atomic per key: concurrent callers never jointly
// over-admit past Burst, and no deduction is lost.
type BucketStore interface {
	// Take refills the bucket for key according to pol, then deducts cost
	// tokens if available. Buckets are created lazily, starting full.
	Take(ctx context.Context, key string, cost int64, pol Policy) (Outcome, error)

	// Peek reports the whole tokens currently available without mutating
	// the bucket. It applies the same refill math the next Take would.
	Peek(ctx context.Context, key string, pol Policy) (int64, error)

	// Reset clears one bucket; ResetAll clears every bucket. Both are safe
	// under live traffic: any bucket touched after the call returns sees
	// the cleared (full) state.
	Reset(ctx context.Context, key string) error
	ResetAll(ctx context.Context) error
}

// Clock abstracts time so refill behavior is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
