// Command gateway runs the rate-limiting reverse proxy in front of an
// upstream API.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ratelimit-gateway/middleware/ratelimit"
	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/auth"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", zap.Error(err), zap.String("path", r.URL.Path))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			// the fallback store covers later outages; an unreachable
			// backend at startup is a configuration problem
			logger.Fatal("redis ping failed", zap.Error(err))
		}
	}

	local := infra.NewMemoryStore()
	local.StartJanitor(ctx)

	var store domain.BucketStore = local
	if cfg.storeMode == "redis" {
		primary := infra.NewRedisStore(rdb, infra.WithStorePrefix(cfg.keyPrefix))
		store = infra.NewFallbackStore(primary, local, logger,
			infra.WithProbeEvery(cfg.fallbackProbe))
	}

	engine, err := application.NewEngine(store, cfg.policies)
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	var principal ratelimit.PrincipalFunc
	if cfg.jwtSecret != "" {
		var verifierOpts []auth.VerifierOption
		if cfg.jwtIssuer != "" {
			verifierOpts = append(verifierOpts, auth.WithIssuer(cfg.jwtIssuer))
		}
		principal = auth.NewVerifier([]byte(cfg.jwtSecret), verifierOpts...).FromRequest
	}

	var stats domain.StatsStore
	if cfg.statsEnabled {
		stats = infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
	}

	var recorder domain.Recorder = domain.NopRecorder{}
	registry := prometheus.NewRegistry()
	if cfg.metricsEnabled {
		recorder = infra.NewPromRecorder(registry)
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		Logger:         logger,
		Recorder:       recorder,
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Engine:             engine,
			Stats:              stats,
			Recorder:           recorder,
			Logger:             logger,
			Principal:          principal,
			KeyHeader:          cfg.keyHeader,
			TrustXForwardedFor: cfg.trustXFF,
			TiersEnabled:       cfg.tiersEnabled,
			AuthPathPrefix:     cfg.authPathPrefix,
			UpgradeURL:         cfg.upgradeURL,
		})(h)
	}
	h = ratelimit.RequestID(h)

	router := chi.NewRouter()
	if cfg.metricsEnabled {
		router.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if cfg.adminToken != "" {
		router.Mount("/admin", adminRouter(store, cfg.adminToken, logger))
	}
	router.Handle("/*", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.Bool("rate_enabled", cfg.rateEnabled),
		zap.String("store", cfg.storeMode),
		zap.Bool("tiers", cfg.tiersEnabled),
		zap.Int("concurrency_max", cfg.concurrencyMax),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
