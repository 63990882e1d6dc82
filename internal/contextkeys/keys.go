// Package contextkeys holds the request-scoped values shared by middleware, handlers and
// the backend client.
package contextkeys

type contextKey string

const (
	// RequestID is set by the RequestID middleware and forwarded to the backend as X-Request-ID.
	RequestID contextKey = "billing.requestID"

	// Admin JWT claims, set by middleware.Auth.
	UserID    contextKey = "billing.userID"
	UserEmail contextKey = "billing.userEmail"
	UserRole  contextKey = "billing.userRole"
)
