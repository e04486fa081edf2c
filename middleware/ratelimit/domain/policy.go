package domain

import (
	"errors"
	"fmt"
	"time"
)

// Policy is the configuration of one limit class: Rate tokens earned per
// Period, holding at most Burst.
type Policy struct {
	Rate   int64
	Period time.Duration
	Burst  int64
}

// RPS is the steady refill rate in tokens per second.
func (p Policy) RPS() float64 {
	return float64(p.Rate) / p.Period.Seconds()
}

func (p Policy) Validate() error {
	if p.Rate <= 0 {
		return errors.New("rate must be > 0")
	}
	if p.Period <= 0 {
		return errors.New("period must be > 0")
	}
	if p.Burst <= 0 {
		return errors.New("burst must be > 0")
	}
	return nil
}

// PolicySet holds every limit class the gate knows about: the general "api"
// class, the stricter "auth" class for credential endpoints, and one policy
// per subscription tier.
type PolicySet struct {
	API   Policy
	Auth  Policy
	Tiers map[Tier]Policy
}

// DefaultPolicySet returns the shipped defaults. Auth is far stricter than
// api to blunt credential stuffing. Tier bursts follow the 2x-rate
// convention; that is a convention of the defaults, not a validated
// constraint.
func DefaultPolicySet() PolicySet {
	return PolicySet{
		API:  Policy{Rate: 100, Period: time.Second, Burst: 150},
		Auth: Policy{Rate: 10, Period: time.Minute, Burst: 15},
		Tiers: map[Tier]Policy{
			TierAnonymous: {Rate: 10, Period: time.Second, Burst: 20},
			TierFree:      {Rate: 50, Period: time.Second, Burst: 100},
			TierBasic:     {Rate: 200, Period: time.Second, Burst: 400},
			TierPro:       {Rate: 1000, Period: time.Second, Burst: 2000},
		},
	}
}

// ForTier returns the policy for t. A tier without an entry falls back to
// the anonymous policy, never to a more generous one.
func (ps PolicySet) ForTier(t Tier) Policy {
	if p, ok := ps.Tiers[t]; ok {
		return p
	}
	if p, ok := ps.Tiers[TierAnonymous]; ok {
		return p
	}
	return Policy{Rate: 1, Period: time.Second, Burst: 1}
}

// Validate rejects non-positive rates, periods and bursts. Callers should
// treat an error as fatal at startup: running with silently wrong limits is
// worse than not starting.
func (ps PolicySet) Validate() error {
	if err := ps.API.Validate(); err != nil {
		return fmt.Errorf("api policy: %w", err)
	}
	if err := ps.Auth.Validate(); err != nil {
		return fmt.Errorf("auth policy: %w", err)
	}
	for tier, p := range ps.Tiers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s tier policy: %w", tier, err)
		}
	}
	return nil
}
