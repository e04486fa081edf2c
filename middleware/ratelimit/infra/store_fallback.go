package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// FallbackStore degrades to a process-local store when the primary backend
// reports domain.ErrUnavailable, instead of failing open or bubbling the
// error into the request path.
//
// Degraded replicas each enforce their own budget: stricter than no
// limiting, looser than the shared budget. The primary is re-probed at a
// bounded rate and takes over again as soon as it answers.
type FallbackStore struct {
	primary domain.BucketStore
	local   domain.BucketStore
	probe   *rate.Limiter
	healthy atomic.Bool
	log     *zap.Logger
}

type FallbackOption func(*FallbackStore)

// WithProbeEvery sets how often an unhealthy primary is retried with live
// traffic (default 5s).
func WithProbeEvery(d time.Duration) FallbackOption {
	return func(f *FallbackStore) { f.probe = rate.NewLimiter(rate.Every(d), 1) }
}

func NewFallbackStore(primary, local domain.BucketStore, log *zap.Logger, opts ...FallbackOption) *FallbackStore {
	if log == nil {
		log = zap.NewNop()
	}
	f := &FallbackStore{
		primary: primary,
		local:   local,
		probe:   rate.NewLimiter(rate.Every(5*time.Second), 1),
		log:     log,
	}
	f.healthy.Store(true)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Take implements domain.BucketStore.
func (f *FallbackStore) Take(ctx context.Context, key string, cost int64, pol domain.Policy) (domain.Outcome, error) {
	if f.usePrimary() {
		out, err := f.primary.Take(ctx, key, cost, pol)
		switch {
		case err == nil:
			f.markHealthy()
			return out, nil
		case !errors.Is(err, domain.ErrUnavailable):
			return out, err
		}
		f.markUnhealthy(err)
	}
	return f.local.Take(ctx, key, cost, pol)
}

// Peek implements domain.BucketStore.
func (f *FallbackStore) Peek(ctx context.Context, key string, pol domain.Policy) (int64, error) {
	if f.usePrimary() {
		n, err := f.primary.Peek(ctx, key, pol)
		switch {
		case err == nil:
			f.markHealthy()
			return n, nil
		case !errors.Is(err, domain.ErrUnavailable):
			return n, err
		}
		f.markUnhealthy(err)
	}
	return f.local.Peek(ctx, key, pol)
}

// Reset clears the bucket on both sides so a recovered primary does not
// resurrect stale state the caller asked to be gone.
func (f *FallbackStore) Reset(ctx context.Context, key string) error {
	localErr := f.local.Reset(ctx, key)
	if err := f.primary.Reset(ctx, key); err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			f.markUnhealthy(err)
			return localErr
		}
		return err
	}
	f.markHealthy()
	return localErr
}

func (f *FallbackStore) ResetAll(ctx context.Context) error {
	localErr := f.local.ResetAll(ctx)
	if err := f.primary.ResetAll(ctx); err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			f.markUnhealthy(err)
			return localErr
		}
		return err
	}
	f.markHealthy()
	return localErr
}

// usePrimary reports whether this call should try the primary: always when
// healthy, at most once per probe interval while degraded.
func (f *FallbackStore) usePrimary() bool {
	return f.healthy.Load() || f.probe.Allow()
}

func (f *FallbackStore) markHealthy() {
	if !f.healthy.Swap(true) {
		f.log.Info("primary bucket store recovered, leaving local fallback")
	}
}

func (f *FallbackStore) markUnhealthy(err error) {
	if f.healthy.Swap(false) {
		f.log.Warn("primary bucket store unavailable, degrading to local limiting", zap.Error(err))
	}
}
