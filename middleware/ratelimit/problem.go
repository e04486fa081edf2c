package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// Problem is the application/problem+json body sent on denial (RFC 9457).
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	// Tier and Upgrade are set in tier mode only: the tier that ran out of
	// budget and where to go for a bigger one.
	Tier    string `json:"tier,omitempty"`
	Upgrade string `json:"upgrade,omitempty"`
}

// writeDenied short-circuits the request with a 429. The detail text names
// which gate denied (general api, auth endpoints, or a tier) so clients and
// dashboards can tell the causes apart.
func writeDenied(w http.ResponseWriter, r *http.Request, opts Options, class domain.Class, tier domain.Tier, out domain.Outcome) {
	h := w.Header()
	h.Set("Retry-After", formatInt(ceilSeconds(out.RetryAfter)))
	h.Set("Content-Type", "application/problem+json")

	prob := Problem{
		Type:   "about:blank",
		Title:  "Too Many Requests",
		Status: http.StatusTooManyRequests,
	}
	switch {
	case opts.TiersEnabled:
		h.Set("X-RateLimit-Tier", tier.String())
		prob.Tier = tier.String()
		prob.Upgrade = opts.UpgradeURL
		prob.Detail = fmt.Sprintf("Rate limit exceeded for the %s tier. Upgrade your plan for higher limits.", tier)
	case class == domain.ClassAuth:
		prob.Detail = fmt.Sprintf("Too many authentication attempts on %s. Try again later.", r.URL.Path)
	default:
		prob.Detail = "API rate limit exceeded. Try again later."
	}

	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(prob)
}
