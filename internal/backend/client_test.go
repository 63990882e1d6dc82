package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmplstore/billing/internal/contextkeys"
	"github.com/tmplstore/billing/internal/domain"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestCreatePayment_SendsBearerAndIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/payments/create", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))

		var body CreatePaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pro", body.PlanID)
		assert.Equal(t, "annual", body.BillingCycle)

		w.Write([]byte(`{"success":true,"paymentLink":"https://pay/x","orderId":"o1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, quietLogger())
	ctx := context.WithValue(context.Background(), contextkeys.RequestID, "req-1")

	resp, err := c.CreatePayment(ctx, "tok", "idem-1", CreatePaymentRequest{PlanID: "pro", BillingCycle: "annual", Currency: "INR"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "o1", resp.OrderID)
	assert.Equal(t, "https://pay/x", resp.PaymentLink)
}

func TestDo_StatusErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	_, err := c.VerifyPayment(context.Background(), "tok", "o1")

	se, ok := AsStatusError(err)
	require.True(t, ok)
	assert.True(t, se.Unauthorized())
	assert.Equal(t, "token expired", se.Message)
}

func TestDo_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	_, err := c.VerifyPayment(context.Background(), "tok", "o1")
	assert.True(t, errors.Is(err, ErrMalformedBody))
}

func TestDo_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, quietLogger())
	_, err := c.GetCurrentPlan(context.Background(), "tok")
	assert.True(t, errors.Is(err, domain.ErrNetwork), "got %v", err)
}

func TestListPayments_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "success", q.Get("status"))
		assert.Equal(t, "pro", q.Get("planId"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "amount", q.Get("sortBy"))
		assert.Equal(t, "asc", q.Get("sortOrder"))
		assert.False(t, q.Has("search"))
		w.Write([]byte(`{"payments":[{"id":"p1","amount":499}],"currentPage":2,"totalPages":3,"total":120}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	resp, err := c.ListPayments(context.Background(), "tok", PaymentQuery{
		Status: "success", PlanID: "pro", Page: 2, Limit: 50, SortBy: "amount", SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Len(t, resp.Payments, 1)
	assert.Equal(t, 3, resp.TotalPages)
}

func TestGetPricing_NotSuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"no such plan"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	_, err := c.GetPricing(context.Background(), "nope")
	se, ok := AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, se.Code)
}
