package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/invoice"
	"github.com/tmplstore/billing/internal/ledger"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/internal/verify"
)

// AuditLister lists recorded verification outcomes.
type AuditLister interface {
	ListRecent(ctx context.Context, limit int) ([]verify.AuditRecord, error)
}

// AdminHandler serves the payments ledger to administrators.
type AdminHandler struct {
	ledger   *ledger.Ledger
	invoices *invoice.Composer
	audits   AuditLister
}

// NewAdminHandler creates an AdminHandler. audits may be nil.
func NewAdminHandler(l *ledger.Ledger, invoices *invoice.Composer, audits AuditLister) *AdminHandler {
	return &AdminHandler{ledger: l, invoices: invoices, audits: audits}
}

// List handles GET /api/admin/ledger.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFromQuery(r)
	if err != nil {
		Error(w, err)
		return
	}
	page, err := h.ledger.List(r.Context(), f, session.FromRequest(r))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, page)
}

// Get handles GET /api/admin/ledger/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"), session.FromRequest(r))
	if err != nil {
		Error(w, err)
		return
	}
	b, err := h.ledger.Breakdown(tx)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"transaction": tx,
		"breakdown":   b,
	})
}

// Invoice handles GET /api/admin/ledger/{id}/invoice. ?format=text returns a printable invoice.
func (h *AdminHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	tx, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"), session.FromRequest(r))
	if err != nil {
		Error(w, err)
		return
	}
	inv, err := h.invoices.Compose(tx)
	if err != nil {
		Error(w, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		var buf bytes.Buffer
		if err := invoice.Render(&buf, inv); err != nil {
			Error(w, domain.ErrInternal("failed to render invoice", err))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}
	JSON(w, http.StatusOK, inv)
}

// Export handles GET /api/admin/ledger/export. Every page matching the filters is
// written; the CSV is buffered so a failure mid-way still yields a JSON error.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFromQuery(r)
	if err != nil {
		Error(w, err)
		return
	}

	var buf bytes.Buffer
	if _, err := h.ledger.ExportAll(r.Context(), &buf, f, session.FromRequest(r)); err != nil {
		Error(w, err)
		return
	}

	name := fmt.Sprintf("payments-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Verifications handles GET /api/admin/verifications.
func (h *AdminHandler) Verifications(w http.ResponseWriter, r *http.Request) {
	if h.audits == nil {
		Error(w, domain.ErrNotFound("verification audit is not enabled"))
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		Error(w, err)
		return
	}
	recs, err := h.audits.ListRecent(r.Context(), limit)
	if err != nil {
		Error(w, domain.ErrInternal("failed to list verifications", err))
		return
	}
	if recs == nil {
		recs = []verify.AuditRecord{}
	}
	JSON(w, http.StatusOK, recs)
}

func filtersFromQuery(r *http.Request) (ledger.Filters, error) {
	q := r.URL.Query()
	page, err := intParam(r, "page")
	if err != nil {
		return ledger.Filters{}, err
	}
	size, err := intParam(r, "pageSize")
	if err != nil {
		return ledger.Filters{}, err
	}
	if size == 0 {
		if size, err = intParam(r, "limit"); err != nil {
			return ledger.Filters{}, err
		}
	}
	return ledger.Filters{
		Status:    q.Get("status"),
		PlanID:    q.Get("planId"),
		Search:    q.Get("search"),
		Page:      page,
		PageSize:  size,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}, nil
}

func intParam(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.ErrBadRequest(fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}
