package checkout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmplstore/billing/internal/backend"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/metrics"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/pkg/payment"
)

var (
	proPlan  = &domain.Plan{ID: "pro", Name: "Pro", Tier: domain.TierPro, BasePriceMinor: 49900}
	freePlan = &domain.Plan{ID: "free", Name: "Free", Tier: domain.TierFree}
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type stubPlans map[string]*domain.Plan

func (s stubPlans) Get(_ context.Context, id string) (*domain.Plan, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound("plan not found")
}

// backendStub serves /api/payments/create with a fixed reply and counts calls.
func backendStub(t *testing.T, status int, body string) (*backend.Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return backend.NewClient(srv.URL, time.Second, quietLogger()), &calls
}

func newOrchestrator(p PaymentCreator) (*Orchestrator, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewOrchestrator(p, stubPlans{"pro": proPlan, "free": freePlan}, m, quietLogger()), m
}

func TestSubmit_FreeTierActivatesWithoutNetwork(t *testing.T) {
	client, calls := backendStub(t, http.StatusOK, `{}`)
	o, _ := newOrchestrator(client)
	sess := session.NewRequestSession("")

	for i := 0; i < 2; i++ {
		res, err := o.Submit(context.Background(), SubmitRequest{Plan: freePlan, Cycle: domain.CycleAnnual, Currency: domain.USD}, sess)
		require.NoError(t, err)
		assert.Equal(t, Activated{PlanID: "free"}, res)
	}
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestSubmit_PaidRedirects(t *testing.T) {
	client, calls := backendStub(t, http.StatusOK, `{"success":true,"paymentLink":"https://pay.example/x","orderId":"ord_1"}`)
	o, m := newOrchestrator(client)

	res, err := o.Submit(context.Background(), SubmitRequest{Plan: proPlan, Cycle: domain.CycleMonthly, Currency: domain.INR}, session.NewRequestSession("tok"))
	require.NoError(t, err)

	redirect, ok := res.(Redirect)
	require.True(t, ok)
	assert.Equal(t, "ord_1", redirect.Order.OrderID)
	assert.Equal(t, "https://pay.example/x", redirect.PaymentLink)
	assert.Equal(t, payment.StatusPending, redirect.Order.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckoutsTotal.WithLabelValues("redirect")))
}

func TestSubmit_UnauthorizedClearsSessionOnce(t *testing.T) {
	client, calls := backendStub(t, http.StatusUnauthorized, `{"message":"jwt expired"}`)
	o, _ := newOrchestrator(client)
	sess := session.NewRequestSession("stale")

	_, err := o.Submit(context.Background(), SubmitRequest{Plan: proPlan, Cycle: domain.CycleMonthly, Currency: domain.INR}, sess)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSessionExpired))
	assert.Equal(t, 1, sess.ClearCount())
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestSubmit_MissingCredentialSkipsNetwork(t *testing.T) {
	client, calls := backendStub(t, http.StatusOK, `{}`)
	o, _ := newOrchestrator(client)

	_, err := o.Submit(context.Background(), SubmitRequest{Plan: proPlan, Cycle: domain.CycleMonthly, Currency: domain.INR}, session.NewRequestSession(""))
	assert.True(t, errors.Is(err, domain.ErrSessionExpired))
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestSubmit_OrderCreationFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server message", http.StatusBadRequest, `{"message":"plan unavailable"}`, "plan unavailable"},
		{"unparsable error body", http.StatusInternalServerError, `<html>oops</html>`, "failed to create order"},
		{"success false", http.StatusOK, `{"success":false,"message":"gateway down"}`, "gateway down"},
		{"malformed 2xx", http.StatusOK, `{"success":`, "failed to create order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := backendStub(t, tt.status, tt.body)
			o, _ := newOrchestrator(client)
			sess := session.NewRequestSession("tok")

			_, err := o.Submit(context.Background(), SubmitRequest{Plan: proPlan, Cycle: domain.CycleAnnual, Currency: domain.USD}, sess)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrOrderCreation))
			appErr, ok := domain.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Zero(t, sess.ClearCount())
		})
	}
}

func TestSubmit_NetworkFailureWrapsNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o, _ := newOrchestrator(backend.NewClient(url, time.Second, quietLogger()))
	_, err := o.Submit(context.Background(), SubmitRequest{Plan: proPlan, Cycle: domain.CycleMonthly, Currency: domain.INR}, session.NewRequestSession("tok"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOrderCreation))
	assert.True(t, errors.Is(err, domain.ErrNetwork))
}

func TestCheckout_ValidatesInput(t *testing.T) {
	client, calls := backendStub(t, http.StatusOK, `{}`)
	o, _ := newOrchestrator(client)
	sess := session.NewRequestSession("tok")

	tests := []struct {
		name string
		req  domain.CheckoutRequest
		msg  string
	}{
		{"missing plan", domain.CheckoutRequest{Cycle: "monthly", Currency: "INR"}, "plan is required"},
		{"bad cycle", domain.CheckoutRequest{PlanID: "pro", Cycle: "weekly", Currency: "INR"}, "billing cycle must be one of: monthly annual yearly"},
		{"bad currency", domain.CheckoutRequest{PlanID: "pro", Cycle: "monthly", Currency: "EUR"}, "currency must be one of: INR USD inr usd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Checkout(context.Background(), tt.req, sess)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			appErr, _ := domain.AsAppError(err)
			assert.Equal(t, tt.msg, appErr.Message)
		})
	}
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestCheckout_ResolvesPlanAndAcceptsYearly(t *testing.T) {
	client, _ := backendStub(t, http.StatusOK, `{"success":true,"paymentLink":"https://pay/y","orderId":"ord_2"}`)
	o, _ := newOrchestrator(client)

	res, err := o.Checkout(context.Background(), domain.CheckoutRequest{PlanID: "pro", Cycle: "yearly", Currency: "usd"}, session.NewRequestSession("tok"))
	require.NoError(t, err)
	redirect := res.(Redirect)
	assert.Equal(t, domain.CycleAnnual, redirect.Order.Cycle)
	assert.Equal(t, domain.USD, redirect.Order.Currency)

	_, err = o.Checkout(context.Background(), domain.CheckoutRequest{PlanID: "gold", Cycle: "monthly", Currency: "INR"}, session.NewRequestSession("tok"))
	assert.True(t, errors.Is(err, domain.ErrNotFoundKind))
}
