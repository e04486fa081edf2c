package application

import (
	"strings"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// ClaimStrategy extracts a raw tier name from a principal. Strategies run
// in priority order; the first non-empty match wins.
type ClaimStrategy func(p domain.Principal) (string, bool)

// StringClaim matches a plain string claim by name.
func StringClaim(name string) ClaimStrategy {
	return func(p domain.Principal) (string, bool) {
		return p.Claim(name)
	}
}

// RolePrefix matches roles of the shape "<prefix><tier>", such as
// "tier:pro" or "ROLE_TIER_PRO". The prefix comparison is case-insensitive.
func RolePrefix(prefix string) ClaimStrategy {
	return func(p domain.Principal) (string, bool) {
		for _, role := range p.Roles() {
			if rest, ok := cutPrefixFold(role, prefix); ok && rest != "" {
				return rest, true
			}
		}
		return "", false
	}
}

// TierResolver maps an authenticated principal to its subscription tier and
// to the identifier used for bucket keys. It never errors: any ambiguity
// degrades to the most conservative classification.
type TierResolver struct {
	strategies []ClaimStrategy
}

// NewTierResolver wires the default priority order: the explicit tier
// claim, then subscription, then plan, then tier-scoped roles.
func NewTierResolver(strategies ...ClaimStrategy) *TierResolver {
	if len(strategies) == 0 {
		strategies = []ClaimStrategy{
			StringClaim("tier"),
			StringClaim("subscription"),
			StringClaim("plan"),
			RolePrefix("tier:"),
			RolePrefix("ROLE_TIER_"),
		}
	}
	return &TierResolver{strategies: strategies}
}

// ResolveTier decides the caller's tier.
//
// Unauthenticated callers are always anonymous, whatever claims they carry.
// An authenticated caller whose matched tier value is unrecognized, or who
// carries no tier signal at all, lands on Free: never guessed upward, and
// never demoted to anonymous.
func (r *TierResolver) ResolveTier(p domain.Principal) domain.Tier {
	if p == nil || !p.Authenticated() {
		return domain.TierAnonymous
	}
	for _, strat := range r.strategies {
		raw, ok := strat(p)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if tier, known := domain.ParseTier(raw); known {
			return tier
		}
		return domain.TierFree
	}
	return domain.TierFree
}

// ResolveIdentity picks the bucket identifier: the stable subject for
// authenticated callers, the client address otherwise.
func (r *TierResolver) ResolveIdentity(p domain.Principal, clientIP string) string {
	if p != nil && p.Authenticated() {
		if sub := strings.TrimSpace(p.Subject()); sub != "" {
			return "user:" + sub
		}
	}
	return "ip:" + clientIP
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}
