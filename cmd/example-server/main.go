// Command example-server wires the gate directly into a web server, no
// proxy involved: a demo API with credential endpoints, a health check and
// tiered limiting driven by a shared JWT secret.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ratelimit-gateway/middleware/ratelimit"
	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/auth"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store := infra.NewMemoryStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	engine, err := application.NewEngine(store, domain.DefaultPolicySet())
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Post("/api/auth/login", echo("logged in"))
	r.Post("/api/auth/register", echo("registered"))
	r.Post("/api/auth/refresh", echo("refreshed"))
	r.Get("/api/hello", echo("hello"))

	var principal ratelimit.PrincipalFunc
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		principal = auth.NewVerifier([]byte(secret)).FromRequest
	}
	tiersEnabled, _ := strconv.ParseBool(os.Getenv("RATE_TIERS_ENABLED"))

	h := http.Handler(r)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Engine:             engine,
		Logger:             logger,
		Principal:          principal,
		TrustXForwardedFor: true,
		TiersEnabled:       tiersEnabled,
	})(h)
	h = ratelimit.RequestID(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr), zap.Bool("tiers", tiersEnabled))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func echo(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(msg + "\n"))
	}
}
