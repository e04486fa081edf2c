package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// Engine binds a bucket store to the configured policies. Every key it
// hands the store is namespaced by limit class, so draining one class never
// affects another class of the same caller.
type Engine struct {
	store    domain.BucketStore
	policies domain.PolicySet
}

// NewEngine validates the policy set up front; an engine with silently
// wrong limits must not come up at all.
func NewEngine(store domain.BucketStore, policies domain.PolicySet) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine: bucket store is required")
	}
	if err := policies.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Engine{store: store, policies: policies}, nil
}

// Policies returns the validated policy set the engine runs with.
func (e *Engine) Policies() domain.PolicySet { return e.policies }

// TakeClass consumes one token for identifier within the named class.
func (e *Engine) TakeClass(ctx context.Context, identifier string, class domain.Class) (domain.Outcome, error) {
	return e.store.Take(ctx, domain.BucketKey(class, identifier), 1, e.PolicyFor(class))
}

// TakeTier consumes one token for identifier under the tier's policy, in
// the tier's own key namespace.
func (e *Engine) TakeTier(ctx context.Context, identifier string, tier domain.Tier) (domain.Outcome, error) {
	return e.store.Take(ctx, domain.BucketKey(domain.ClassForTier(tier), identifier), 1, e.policies.ForTier(tier))
}

// TakeTierName resolves the tier by name, case-insensitively. Unknown names
// are limited under the anonymous policy, never a higher one.
func (e *Engine) TakeTierName(ctx context.Context, identifier, name string) (domain.Outcome, error) {
	tier, _ := domain.ParseTier(name)
	return e.TakeTier(ctx, identifier, tier)
}

// AvailableClass reports the tokens identifier still has in class without
// consuming any.
func (e *Engine) AvailableClass(ctx context.Context, identifier string, class domain.Class) (int64, error) {
	return e.store.Peek(ctx, domain.BucketKey(class, identifier), e.PolicyFor(class))
}

// AvailableTier reports the tokens identifier still has under the tier.
func (e *Engine) AvailableTier(ctx context.Context, identifier string, tier domain.Tier) (int64, error) {
	return e.store.Peek(ctx, domain.BucketKey(domain.ClassForTier(tier), identifier), e.policies.ForTier(tier))
}

// PolicyFor maps a class to its policy. Tier classes carry their tier's
// policy; anything unrecognized is limited as general api traffic.
func (e *Engine) PolicyFor(class domain.Class) domain.Policy {
	switch class {
	case domain.ClassAuth:
		return e.policies.Auth
	case domain.ClassAPI:
		return e.policies.API
	}
	if name, ok := strings.CutPrefix(string(class), "tier:"); ok {
		tier, _ := domain.ParseTier(name)
		return e.policies.ForTier(tier)
	}
	return e.policies.API
}
