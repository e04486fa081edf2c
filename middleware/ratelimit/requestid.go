package ratelimit

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID tags requests arriving without an X-Request-Id so denials can
// be correlated between gateway and upstream logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
