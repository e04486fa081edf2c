package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

type config struct {
	listenAddr  string
	upstreamURL string

	rateEnabled  bool
	storeMode    string // "memory" or "redis"
	keyPrefix    string
	tiersEnabled bool
	policyFile   string

	keyHeader      string
	trustXFF       bool
	authPathPrefix string
	upgradeURL     string

	redisAddr     string
	redisPassword string
	redisDB       int
	fallbackProbe time.Duration

	statsEnabled   bool
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool

	metricsEnabled bool
	adminToken     string

	jwtSecret string
	jwtIssuer string

	concurrencyMax     int
	concurrencyTimeout time.Duration

	policies domain.PolicySet
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.storeMode = strings.ToLower(getenvDefault("RATE_STORE", "memory"))
	cfg.keyPrefix = getenvDefault("RATE_KEY_PREFIX", "ratelimit:")
	cfg.tiersEnabled = getenvBoolDefault("RATE_TIERS_ENABLED", false)
	cfg.policyFile = os.Getenv("RATE_POLICY_FILE")

	cfg.keyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.authPathPrefix = getenvDefault("AUTH_PATH_PREFIX", "/api/auth")
	cfg.upgradeURL = getenvDefault("UPGRADE_URL", "/pricing")

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.fallbackProbe = getenvDurationDefault("RATE_FALLBACK_PROBE", 5*time.Second)

	cfg.statsEnabled = getenvBoolDefault("STATS_ENABLED", false)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "ratelimit:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	cfg.metricsEnabled = getenvBoolDefault("METRICS_ENABLED", false)
	cfg.adminToken = os.Getenv("ADMIN_TOKEN")

	cfg.jwtSecret = os.Getenv("AUTH_JWT_SECRET")
	cfg.jwtIssuer = os.Getenv("AUTH_JWT_ISSUER")

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	policies, err := readPolicies(cfg.policyFile)
	if err != nil {
		return config{}, err
	}
	cfg.policies = policies

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.storeMode {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.redisAddr) == "" {
			return config{}, errors.New("REDIS_ADDR is required when RATE_STORE=redis")
		}
	default:
		return config{}, fmt.Errorf("RATE_STORE must be memory or redis, got %q", cfg.storeMode)
	}
	if cfg.statsEnabled && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New("REDIS_ADDR is required when STATS_ENABLED=true")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	// invalid limits are fatal: running with silently wrong policies is
	// worse than refusing to start
	if err := cfg.policies.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// readPolicies layers the limit configuration: shipped defaults, then env
// overrides, then the optional YAML policy file.
func readPolicies(policyFile string) (domain.PolicySet, error) {
	ps := domain.DefaultPolicySet()

	if v, ok := getenvInt64("RATE_API_RPS"); ok {
		ps.API.Rate = v
		ps.API.Period = time.Second
	}
	if v, ok := getenvInt64("RATE_API_BURST"); ok {
		ps.API.Burst = v
	}
	if v, ok := getenvInt64("RATE_AUTH_PER_MINUTE"); ok {
		ps.Auth.Rate = v
		ps.Auth.Period = time.Minute
	}
	if v, ok := getenvInt64("RATE_AUTH_BURST"); ok {
		ps.Auth.Burst = v
	}

	for tier, name := range map[domain.Tier]string{
		domain.TierAnonymous: "ANONYMOUS",
		domain.TierFree:      "FREE",
		domain.TierBasic:     "BASIC",
		domain.TierPro:       "PRO",
	} {
		p := ps.Tiers[tier]
		if v, ok := getenvInt64("RATE_TIER_" + name + "_RPS"); ok {
			p.Rate = v
			p.Period = time.Second
		}
		if v, ok := getenvInt64("RATE_TIER_" + name + "_BURST"); ok {
			p.Burst = v
		}
		ps.Tiers[tier] = p
	}

	if policyFile == "" {
		return ps, nil
	}
	raw, err := os.ReadFile(policyFile)
	if err != nil {
		return ps, fmt.Errorf("reading RATE_POLICY_FILE: %w", err)
	}
	var pf policyFileYAML
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return ps, fmt.Errorf("parsing RATE_POLICY_FILE: %w", err)
	}
	return pf.apply(ps)
}

type policyFileYAML struct {
	API   *policyYAML           `yaml:"api"`
	Auth  *policyYAML           `yaml:"auth"`
	Tiers map[string]policyYAML `yaml:"tiers"`
}

type policyYAML struct {
	Rate   int64  `yaml:"rate"`
	Period string `yaml:"period"`
	Burst  int64  `yaml:"burst"`
}

func (pf policyFileYAML) apply(ps domain.PolicySet) (domain.PolicySet, error) {
	if pf.API != nil {
		p, err := pf.API.policy(ps.API)
		if err != nil {
			return ps, fmt.Errorf("policy file api: %w", err)
		}
		ps.API = p
	}
	if pf.Auth != nil {
		p, err := pf.Auth.policy(ps.Auth)
		if err != nil {
			return ps, fmt.Errorf("policy file auth: %w", err)
		}
		ps.Auth = p
	}
	for name, py := range pf.Tiers {
		tier, known := domain.ParseTier(name)
		if !known {
			return ps, fmt.Errorf("policy file: unknown tier %q", name)
		}
		p, err := py.policy(ps.Tiers[tier])
		if err != nil {
			return ps, fmt.Errorf("policy file tier %s: %w", name, err)
		}
		ps.Tiers[tier] = p
	}
	return ps, nil
}

func (py policyYAML) policy(base domain.Policy) (domain.Policy, error) {
	if py.Rate != 0 {
		base.Rate = py.Rate
	}
	if py.Burst != 0 {
		base.Burst = py.Burst
	}
	if py.Period != "" {
		d, err := time.ParseDuration(py.Period)
		if err != nil {
			return base, fmt.Errorf("bad period %q: %w", py.Period, err)
		}
		base.Period = d
	}
	return base, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt64(k string) (int64, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
