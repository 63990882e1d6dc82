package cli

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmplstore/billing/internal/config"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/pkg/crypto"
)

func testBackend(t *testing.T) string {
	t.Helper()
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	r := chi.NewRouter()
	r.Get("/api/pricing/pro", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"plan":{"id":"pro","name":"Pro","monthlyPrice":499}}`))
	})
	r.Post("/api/payments/create", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"paymentLink":"https://pay.example/o9","orderId":"o9"}`))
	}))
	r.Post("/api/payments/verify", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"planName":"Pro","billingCycle":"annual","orderCurrency":"INR","orderAmount":5089.8}`))
	}))
	r.Get("/api/admin/payments", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"payments":[{"id":"tx_1","userId":"u1","userEmail":"a@example.com","planId":"pro","planName":"Pro","billingCycle":"monthly","currency":"INR","amount":100,"status":"success","createdAt":"2024-03-01T10:30:00Z"}],"currentPage":1,"totalPages":1,"total":1}`))
	}))
	r.Get("/api/admin/payments/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"payment":{"id":"tx_1","userId":"u1","planId":"pro","planName":"Pro","billingCycle":"monthly","currency":"INR","amount":100,"status":"success","createdAt":"2024-03-01T10:30:00Z"}}`))
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	enc, err := crypto.NewEncryptorFromPassphrase("test")
	require.NoError(t, err)
	store := session.NewFileStore(filepath.Join(t.TempDir(), "credentials"), enc, log)

	cfg := &config.Config{
		BackendURL:     testBackend(t),
		ExchangeRate:   83,
		TaxRate:        0.18,
		AnnualDiscount: 0.15,
		RetryDelay:     time.Millisecond,
		MaxRetries:     3,
		HTTPTimeout:    time.Second,
		PricingTTL:     time.Minute,
	}
	var out bytes.Buffer
	return NewApp(cfg, store, &out, log), &out
}

func run(app *App, args ...string) error {
	return NewRootCommand(app).Execute(app.Out, args)
}

func TestUsageListsCommands(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, run(app))
	for _, name := range []string{"login", "logout", "quote", "checkout", "verify", "ledger", "invoice"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Error(t, run(app, "refund"))
}

func TestQuote(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, run(app, "quote", "--plan", "pro", "--cycle", "annual"))
	assert.Equal(t, "Pro (annual, INR): ₹5089.80  was ₹5988.00, save ₹898.20\n", out.String())
}

func TestCheckoutAndVerify(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, run(app, "login", "--token", "good"))

	require.NoError(t, run(app, "checkout", "--plan", "pro", "--cycle", "annual"))
	assert.Contains(t, out.String(), "https://pay.example/o9")

	require.NoError(t, run(app, "verify", "--order", "o9"))
	assert.Contains(t, out.String(), "Payment confirmed: Pro (annual) ₹5089.80")
}

func TestExpiredCredentialIsCleared(t *testing.T) {
	app, _ := newTestApp(t)
	require.NoError(t, run(app, "login", "--token", "stale"))

	err := run(app, "checkout", "--plan", "pro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "billingctl login")
	assert.Empty(t, app.Store.Credential())

	err = run(app, "verify", "--order", "o9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
}

func TestLedgerAndInvoice(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, run(app, "login", "--token", "good"))

	require.NoError(t, run(app, "ledger", "list"))
	assert.Contains(t, out.String(), "a@example.com")
	assert.Contains(t, out.String(), "page 1/1, 1 total")

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, run(app, "ledger", "export", "--out", path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ",84.75,15.25,100.00"))

	out.Reset()
	require.NoError(t, run(app, "invoice", "--id", "tx_1"))
	assert.Contains(t, out.String(), "Pro (monthly)")
	assert.Contains(t, out.String(), "₹100.00")

	assert.Error(t, run(app, "ledger", "list", "--sort-by", "email"))
}

// failingFile accepts writes but fails on Close, like a disk that fills up on flush.
type failingFile struct{ bytes.Buffer }

func (f *failingFile) Close() error { return errors.New("no space left on device") }

func TestLedgerExportReportsCloseError(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, run(app, "login", "--token", "good"))
	out.Reset()

	orig := createFile
	createFile = func(string) (io.WriteCloser, error) { return &failingFile{}, nil }
	t.Cleanup(func() { createFile = orig })

	err := run(app, "ledger", "export", "--out", "ledger.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space left on device")
	assert.NotContains(t, out.String(), "Wrote")
}
