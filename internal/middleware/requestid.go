package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/tmplstore/billing/internal/contextkeys"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags each request with an id, reusing the caller's when it sent one.
// The id is echoed on the response and forwarded on backend calls.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextkeys.RequestID, id)))
	})
}
