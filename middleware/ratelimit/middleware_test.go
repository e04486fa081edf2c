package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/auth"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newTestEngine(t *testing.T) *application.Engine {
	t.Helper()
	store := infra.NewMemoryStore(infra.WithClock(fixedClock{at: time.Unix(1700000000, 0)}))
	e, err := application.NewEngine(store, domain.DefaultPolicySet())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var p Problem
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestMiddleware_NilEngineIsPassThrough(t *testing.T) {
	h := Middleware(Options{})(okHandler())
	for i := 0; i < 500; i++ {
		if w := doRequest(h, http.MethodGet, "/api/x", "1.2.3.4:1000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
}

func TestMiddleware_ExemptPathsBypassTheGate(t *testing.T) {
	engine := newTestEngine(t)
	h := Middleware(Options{Engine: engine})(okHandler())

	for _, path := range []string{"/health", "/healthz", "/swagger/index.html", "/assets/app.css", "/logo.png"} {
		w := doRequest(h, http.MethodGet, path, "1.2.3.4:1000")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatalf("%s: exempt paths must not carry limit headers", path)
		}
	}

	// no bucket was touched
	n, err := engine.AvailableClass(context.Background(), "ip:1.2.3.4", domain.ClassAPI)
	if err != nil {
		t.Fatal(err)
	}
	if n != 150 {
		t.Fatalf("api bucket was consumed by exempt traffic, %d left", n)
	}
}

func TestMiddleware_FlatModeHeaders(t *testing.T) {
	h := Middleware(Options{Engine: newTestEngine(t)})(okHandler())

	w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "150" {
		t.Fatalf("X-RateLimit-Limit = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "149" {
		t.Fatalf("X-RateLimit-Remaining = %q", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("X-RateLimit-Reset missing")
	}
	if w.Header().Get("X-RateLimit-Tier") != "" {
		t.Fatal("tier header must not appear in flat mode")
	}
}

func TestMiddleware_FlatModeDeniesPastBurst(t *testing.T) {
	h := Middleware(Options{Engine: newTestEngine(t)})(okHandler())

	for i := 0; i < 150; i++ {
		if w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}

	w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing on denial")
	}
	prob := decodeProblem(t, w)
	if prob.Status != http.StatusTooManyRequests || prob.Title != "Too Many Requests" {
		t.Fatalf("problem = %+v", prob)
	}
	if !strings.Contains(prob.Detail, "API rate limit") {
		t.Fatalf("detail = %q", prob.Detail)
	}

	// a different address is not affected
	if w := doRequest(h, http.MethodGet, "/api/orders", "5.6.7.8:1000"); w.Code != http.StatusOK {
		t.Fatalf("other client: status %d", w.Code)
	}
}

func TestMiddleware_AuthEndpointsGetTheStricterPolicy(t *testing.T) {
	h := Middleware(Options{Engine: newTestEngine(t)})(okHandler())

	// auth policy: 10/min with a burst of 15
	for i := 0; i < 15; i++ {
		if w := doRequest(h, http.MethodPost, "/api/auth/login", "1.2.3.4:1000"); w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status %d", i, w.Code)
		}
	}

	w := doRequest(h, http.MethodPost, "/api/auth/login", "1.2.3.4:1000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("attempt 16: status %d, want 429", w.Code)
	}
	prob := decodeProblem(t, w)
	if !strings.Contains(prob.Detail, "authentication") {
		t.Fatalf("auth denial must mention authentication, got %q", prob.Detail)
	}
	if !strings.Contains(prob.Detail, "/api/auth/login") {
		t.Fatalf("auth denial must name the path, got %q", prob.Detail)
	}

	// the same caller's general api budget is untouched
	if w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000"); w.Code != http.StatusOK {
		t.Fatalf("api after auth exhaustion: status %d", w.Code)
	}
}

func TestIsAuthRoute(t *testing.T) {
	cases := []struct {
		method, path string
		want         bool
	}{
		{http.MethodPost, "/api/auth/login", true},
		{http.MethodPost, "/api/auth/register", true},
		{http.MethodPost, "/api/auth/refresh", true},
		{http.MethodPost, "/api/auth/refresh/xyz", true},
		{http.MethodGet, "/api/auth/login", false},
		{http.MethodPost, "/api/auth/profile", false},
		{http.MethodPost, "/api/authx/login", false},
		{http.MethodPost, "/api/orders", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(tc.method, tc.path, nil)
		if got := isAuthRoute(r, "/api/auth"); got != tc.want {
			t.Errorf("%s %s: got %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestMiddleware_TierModeAnonymous(t *testing.T) {
	h := Middleware(Options{Engine: newTestEngine(t), TiersEnabled: true})(okHandler())

	// anonymous policy: 10/s with a burst of 20
	for i := 0; i < 20; i++ {
		w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Tier"); got != "anonymous" {
			t.Fatalf("request %d: tier header %q", i, got)
		}
	}

	w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Tier"); got != "anonymous" {
		t.Fatalf("denial tier header = %q", got)
	}
	prob := decodeProblem(t, w)
	if prob.Tier != "anonymous" {
		t.Fatalf("problem tier = %q", prob.Tier)
	}
	if prob.Upgrade != "/pricing" {
		t.Fatalf("problem upgrade = %q", prob.Upgrade)
	}
	if !strings.Contains(prob.Detail, "Upgrade") {
		t.Fatalf("tier denial should carry an upgrade hint, got %q", prob.Detail)
	}
}

func TestMiddleware_TierModeAuthenticated(t *testing.T) {
	principal := func(*http.Request) domain.Principal {
		return auth.StaticPrincipal{Authed: true, Sub: "42", Claims: map[string]string{"tier": "pro"}}
	}
	h := Middleware(Options{Engine: newTestEngine(t), TiersEnabled: true, Principal: principal})(okHandler())

	w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Tier"); got != "pro" {
		t.Fatalf("tier header = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "2000" {
		t.Fatalf("limit header = %q", got)
	}
}

func TestMiddleware_TierModeKeysAuthenticatedBySubject(t *testing.T) {
	engine := newTestEngine(t)
	principal := func(*http.Request) domain.Principal {
		return auth.StaticPrincipal{Authed: true, Sub: "42", Claims: map[string]string{"tier": "free"}}
	}
	h := Middleware(Options{Engine: engine, TiersEnabled: true, Principal: principal})(okHandler())

	// two addresses, one subject: both hit the same bucket
	doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	doRequest(h, http.MethodGet, "/api/orders", "9.9.9.9:1000")

	n, err := engine.AvailableTier(context.Background(), "user:42", domain.TierFree)
	if err != nil {
		t.Fatal(err)
	}
	if n != 98 {
		t.Fatalf("expected 98 tokens left in the subject bucket, got %d", n)
	}
}

func TestMiddleware_StoreErrorDeniesWithoutServerError(t *testing.T) {
	engine, err := application.NewEngine(failingStore{}, domain.DefaultPolicySet())
	if err != nil {
		t.Fatal(err)
	}
	h := Middleware(Options{Engine: engine})(okHandler())

	w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429 on store failure", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}
}

func TestMiddleware_PanickingPrincipalDegradesToAnonymous(t *testing.T) {
	principal := func(*http.Request) domain.Principal { panic("bad token cache") }
	h := Middleware(Options{Engine: newTestEngine(t), TiersEnabled: true, Principal: principal})(okHandler())

	w := doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Tier"); got != "anonymous" {
		t.Fatalf("tier header = %q", got)
	}
}

func TestMiddleware_RecordsStatsAndMetrics(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	rec := &captureRecorder{}
	h := Middleware(Options{Engine: newTestEngine(t), Stats: stats, Recorder: rec})(okHandler())

	doRequest(h, http.MethodGet, "/api/orders", "1.2.3.4:1000")
	for i := 0; i < 16; i++ {
		doRequest(h, http.MethodPost, "/api/auth/login", "1.2.3.4:1000")
	}

	total := stats.Total()
	if total.Allowed != 16 || total.Denied != 1 {
		t.Fatalf("stats total = %+v", total)
	}
	byClass := stats.ByClass()
	if c := byClass["auth"]; c.Allowed != 15 || c.Denied != 1 {
		t.Fatalf("auth counters = %+v", c)
	}
	if c := byClass["api"]; c.Allowed != 1 {
		t.Fatalf("api counters = %+v", c)
	}

	if rec.count(domain.MetricDecision, "auth", "denied") != 1 {
		t.Fatalf("expected one denied auth decision metric")
	}
	if rec.observations(domain.MetricLatency) != 17 {
		t.Fatalf("expected a latency sample per gated request, got %d", rec.observations(domain.MetricLatency))
	}
}

// captureRecorder remembers every metric call for assertions.
type captureRecorder struct {
	mu   sync.Mutex
	adds []metricCall
	obs  []metricCall
}

type metricCall struct {
	name string
	tags map[string]string
}

func (r *captureRecorder) Add(name string, _ float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds = append(r.adds, metricCall{name: name, tags: tags})
}

func (r *captureRecorder) Observe(name string, _ float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, metricCall{name: name, tags: tags})
}

func (r *captureRecorder) count(name, class, result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.adds {
		if c.name == name && c.tags["class"] == class && c.tags["result"] == result {
			n++
		}
	}
	return n
}

func (r *captureRecorder) observations(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.obs {
		if c.name == name {
			n++
		}
	}
	return n
}

// failingStore simulates a backend outage on every call.
type failingStore struct{}

func (failingStore) Take(context.Context, string, int64, domain.Policy) (domain.Outcome, error) {
	return domain.Outcome{}, domain.ErrUnavailable
}
func (failingStore) Peek(context.Context, string, domain.Policy) (int64, error) {
	return 0, domain.ErrUnavailable
}
func (failingStore) Reset(context.Context, string) error { return domain.ErrUnavailable }
func (failingStore) ResetAll(context.Context) error      { return domain.ErrUnavailable }
