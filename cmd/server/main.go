package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/backend"
	"github.com/tmplstore/billing/internal/catalog"
	"github.com/tmplstore/billing/internal/checkout"
	"github.com/tmplstore/billing/internal/config"
	"github.com/tmplstore/billing/internal/handler"
	"github.com/tmplstore/billing/internal/invoice"
	"github.com/tmplstore/billing/internal/ledger"
	"github.com/tmplstore/billing/internal/metrics"
	appMiddleware "github.com/tmplstore/billing/internal/middleware"
	"github.com/tmplstore/billing/internal/pricing"
	"github.com/tmplstore/billing/internal/repository"
	"github.com/tmplstore/billing/internal/verify"
	"github.com/tmplstore/billing/internal/ws"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load .env file if present (for local development)
	loadDotEnv(log)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Optional verification audit
	var (
		pinger   handler.Pinger
		audit    verify.AuditStore
		outcomes handler.OutcomeLookup
		audits   handler.AuditLister
	)
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(ctx, cfg.DatabaseURL, 10)
		if err != nil {
			log.Fatalf("❌ Database error: %v", err)
		}
		defer db.Close()

		if err := repository.RunMigrations(ctx, db); err != nil {
			log.Fatalf("❌ Migration error: %v", err)
		}
		repo := repository.NewVerificationRepository(db)
		pinger, audit, outcomes, audits = db, repo, repo, repo
		log.Println("✅ Database connected & migrated")
	} else {
		log.Warn("⚠️  DATABASE_URL not set, verification audit disabled")
	}

	// Core
	client := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout, log)
	calc := pricing.NewCalculator(cfg.TaxRate)
	plans := catalog.New(client, cfg.PricingTTL, log).WithDefaultDiscount(cfg.AnnualDiscount)
	orchestrator := checkout.NewOrchestrator(client, plans, m, log)
	verifier := verify.NewVerifier(client, verify.Options{
		RetryDelay: cfg.RetryDelay,
		MaxRetries: cfg.MaxRetries,
	}, audit, m, log)
	payments := ledger.New(client, calc, m, log)
	invoices := invoice.NewComposer(payments)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(pinger, verifier)
	plansHandler := handler.NewPlansHandler(plans, calc, cfg.ExchangeRate, m)
	paymentHandler := handler.NewPaymentHandler(orchestrator, verifier, outcomes, log)
	adminHandler := handler.NewAdminHandler(payments, invoices, audits)
	verifyHandler := ws.NewVerifyHandler(verifier, cfg.CORSOrigins, log)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery(log))
	r.Use(appMiddleware.RequestID)
	r.Use(appMiddleware.Logger(log, m))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(ctx, 20, 40)
	r.Use(globalRL.Middleware())

	// Public routes
	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", m.Handler())
	r.Get("/api/plans", plansHandler.List)
	r.Get("/api/plans/{planId}/quote", plansHandler.Quote)

	// Bearer-forwarded routes: the backend decides whether the token is good
	r.Post("/api/checkout", paymentHandler.Checkout)
	r.Get("/api/payments/{orderId}/status", paymentHandler.Status)

	// WebSocket verification stream (auth via query param)
	r.Get("/ws/payments/{orderId}/verify", verifyHandler.Handle)

	// Admin routes
	if cfg.AdminEnabled() {
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.Auth(cfg.JWTSecret))
			r.Use(appMiddleware.AdminOnly)

			// Specific routes BEFORE generic {id} route
			r.Get("/api/admin/ledger", adminHandler.List)
			r.Get("/api/admin/ledger/export", adminHandler.Export)
			r.Get("/api/admin/ledger/{id}", adminHandler.Get)
			r.Get("/api/admin/ledger/{id}/invoice", adminHandler.Invoice)
			r.Get("/api/admin/verifications", adminHandler.Verifications)
		})
	} else {
		log.Warn("⚠️  JWT_SECRET not set, admin routes disabled")
	}

	// Start server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must be 0: status polls and verification streams are long-lived
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown did not complete cleanly")
		}
	}()

	log.Printf("🚀 Billing gateway listening at http://%s (backend %s)", addr, cfg.BackendURL)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("❌ Server error: %v", err)
	}
}

// loadDotEnv reads a .env file if it exists. Variables already set win.
func loadDotEnv(log logrus.FieldLogger) {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("⚠️  failed to read .env")
	}
}
