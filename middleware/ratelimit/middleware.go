package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
)

// PrincipalFunc hands the gate the already-authenticated caller, or
// domain.Anonymous. See the auth package for a JWT-backed implementation.
type PrincipalFunc func(r *http.Request) domain.Principal

type Options struct {
	Engine   *application.Engine
	Resolver *application.TierResolver
	Stats    domain.StatsStore
	Recorder domain.Recorder
	Logger   *zap.Logger

	// Principal resolves the caller. Nil means all traffic is anonymous.
	Principal PrincipalFunc

	// Client address resolution, see DefaultKeyFunc.
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// TiersEnabled switches from flat api/auth limiting to per-tier
	// limiting driven by the principal's claims.
	TiersEnabled bool

	// AuthPathPrefix roots the credential endpoints that get the stricter
	// auth policy in flat mode (default "/api/auth").
	AuthPathPrefix string

	// UpgradeURL is referenced by tier-mode denial bodies (default "/pricing").
	UpgradeURL string

	// ExemptPaths / ExemptExtensions override the default bypass lists.
	ExemptPaths      []string
	ExemptExtensions []string
}

// authPaths are the credential endpoints under AuthPathPrefix; only POSTs
// to them get the auth policy.
var authPaths = []string{"/login", "/register", "/refresh"}

// Middleware builds the admission gate. With a nil engine it becomes a
// pass-through, mirroring a disabled limiter in configuration.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Engine == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Resolver == nil {
		opts.Resolver = application.NewTierResolver()
	}
	if opts.Recorder == nil {
		opts.Recorder = domain.NopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.AuthPathPrefix == "" {
		opts.AuthPathPrefix = "/api/auth"
	}
	if opts.UpgradeURL == "" {
		opts.UpgradeURL = "/pricing"
	}
	if opts.ExemptPaths == nil {
		opts.ExemptPaths = DefaultExemptPaths
	}
	if opts.ExemptExtensions == nil {
		opts.ExemptExtensions = DefaultExemptExtensions
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPath(r.URL.Path, opts.ExemptPaths, opts.ExemptExtensions) {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := opts.KeyFn(r)
			principal := resolvePrincipal(opts.Principal, r, opts.Logger)

			var (
				class      domain.Class
				tier       domain.Tier
				identifier string
				out        domain.Outcome
				err        error
			)

			start := time.Now()
			if opts.TiersEnabled {
				tier = opts.Resolver.ResolveTier(principal)
				identifier = opts.Resolver.ResolveIdentity(principal, clientIP)
				class = domain.ClassForTier(tier)
				out, err = opts.Engine.TakeTier(r.Context(), identifier, tier)
			} else {
				identifier = "ip:" + clientIP
				class = domain.ClassAPI
				if isAuthRoute(r, opts.AuthPathPrefix) {
					class = domain.ClassAuth
				}
				out, err = opts.Engine.TakeClass(r.Context(), identifier, class)
			}
			opts.Recorder.Observe(domain.MetricLatency, time.Since(start).Seconds(),
				map[string]string{"class": string(class)})

			if err != nil {
				// The store could not decide. Deny with a short retry
				// rather than admitting unlimited traffic or leaking a 5xx.
				opts.Logger.Error("bucket store error, denying request",
					zap.Error(err), zap.String("key", identifier), zap.String("class", string(class)))
				now := time.Now()
				out = domain.Outcome{Allowed: false, RetryAfter: time.Second, Reset: now.Add(time.Second)}
			}

			result := "denied"
			if out.Allowed {
				result = "allowed"
			}
			opts.Recorder.Add(domain.MetricDecision, 1,
				map[string]string{"class": string(class), "result": result})

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Key:     identifier,
					Class:   class,
					Allowed: out.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				}
				if opts.TiersEnabled {
					ev.Tier = tier.String()
				}
				_ = opts.Stats.Record(r.Context(), ev)
			}

			if !out.Allowed {
				writeDenied(w, r, opts, class, tier, out)
				return
			}

			pol := opts.Engine.PolicyFor(class)
			h := w.Header()
			h.Set("X-RateLimit-Limit", formatInt64(pol.Burst))
			h.Set("X-RateLimit-Remaining", formatInt64(out.Remaining))
			h.Set("X-RateLimit-Reset", formatInt64(out.Reset.Unix()))
			if opts.TiersEnabled {
				h.Set("X-RateLimit-Tier", tier.String())
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isAuthRoute reports whether the request is a POST to one of the
// credential endpoints under prefix.
func isAuthRoute(r *http.Request, prefix string) bool {
	if r.Method != http.MethodPost {
		return false
	}
	rest, ok := strings.CutPrefix(r.URL.Path, prefix)
	if !ok {
		return false
	}
	for _, p := range authPaths {
		if rest == p || strings.HasPrefix(rest, p+"/") {
			return true
		}
	}
	return false
}

// resolvePrincipal shields the pipeline from a misbehaving principal
// source: a nil result or a panic both degrade to anonymous, which is the
// most restrictive classification.
func resolvePrincipal(fn PrincipalFunc, r *http.Request, log *zap.Logger) (p domain.Principal) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("principal resolution panicked, treating caller as anonymous", zap.Any("panic", rec))
			p = domain.Anonymous
		}
	}()

	if fn == nil {
		return domain.Anonymous
	}
	if got := fn(r); got != nil {
		return got
	}
	return domain.Anonymous
}
