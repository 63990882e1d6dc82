package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/handler"
)

// Recovery catches panics and returns a 500 error instead of crashing the server.
func Recovery(log logrus.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.WithField("panic", err).Errorf("PANIC in %s %s\n%s", r.Method, r.URL.Path, debug.Stack())
					handler.JSON(w, http.StatusInternalServerError, map[string]string{
						"error": "internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
