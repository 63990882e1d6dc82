package handler

import (
	"context"
	"net/http"

	"github.com/tmplstore/billing/internal/verify"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	db       Pinger
	verifier *verify.Verifier
}

// NewHealthHandler creates a new HealthHandler. db may be nil when auditing is off.
func NewHealthHandler(db Pinger, verifier *verify.Verifier) *HealthHandler {
	return &HealthHandler{db: db, verifier: verifier}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":              "ok",
		"activeVerifications": h.verifier.ActiveCount(),
	}

	if h.db == nil {
		status["database"] = "disabled"
	} else if err := h.db.Ping(r.Context()); err != nil {
		status["database"] = "error"
		status["status"] = "degraded"
	} else {
		status["database"] = "ok"
	}

	code := http.StatusOK
	if status["status"] == "degraded" {
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}
