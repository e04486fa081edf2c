package domain

import "strings"

// Tier is a subscription level. Higher tiers get more generous limits.
type Tier int

const (
	TierAnonymous Tier = iota
	TierFree
	TierBasic
	TierPro
)

func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierBasic:
		return "basic"
	case TierPro:
		return "pro"
	default:
		return "anonymous"
	}
}

// ParseTier maps a tier name to a Tier, case-insensitively. The boolean
// reports whether the name was recognized; unrecognized names come back as
// TierAnonymous so a bad value can never land on a higher tier.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anonymous":
		return TierAnonymous, true
	case "free":
		return TierFree, true
	case "basic":
		return TierBasic, true
	case "pro":
		return TierPro, true
	}
	return TierAnonymous, false
}
