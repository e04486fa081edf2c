package main

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// adminRouter exposes the administrative bucket operations. Mounted only
// when an admin token is configured; never proxied upstream and never rate
// limited itself.
func adminRouter(store domain.BucketStore, token string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requireAdminToken(token))

	r.Post("/ratelimit/reset", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "query parameter key is required", http.StatusBadRequest)
			return
		}
		if err := store.Reset(r.Context(), key); err != nil {
			log.Error("admin reset failed", zap.String("key", key), zap.Error(err))
			http.Error(w, "reset failed", http.StatusBadGateway)
			return
		}
		log.Info("bucket reset", zap.String("key", key))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/ratelimit/reset-all", func(w http.ResponseWriter, r *http.Request) {
		if err := store.ResetAll(r.Context()); err != nil {
			log.Error("admin reset-all failed", zap.Error(err))
			http.Error(w, "reset failed", http.StatusBadGateway)
			return
		}
		log.Info("all buckets reset")
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
