// Package ledger is the read-only administrative view over settled payments.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/backend"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/metrics"
	"github.com/tmplstore/billing/internal/pricing"
	"github.com/tmplstore/billing/internal/session"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Backend is the part of the backend client the ledger reads from.
type Backend interface {
	ListPayments(ctx context.Context, token string, q backend.PaymentQuery) (*backend.AdminPaymentsResponse, error)
	GetPayment(ctx context.Context, token, id string) (*backend.AdminPayment, error)
}

// Filters narrows a listing. Zero values take the defaults: page 1, 20 rows, newest first.
type Filters struct {
	Status    string `validate:"omitempty,max=32"`
	PlanID    string `validate:"omitempty,max=64"`
	Search    string `validate:"omitempty,max=128"`
	Page      int    `validate:"min=1"`
	PageSize  int    `validate:"min=1,max=100"`
	SortBy    string `validate:"oneof=createdAt amount status planName"`
	SortOrder string `validate:"oneof=asc desc"`
}

func (f Filters) withDefaults() Filters {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = DefaultPageSize
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
	return f
}

// Stats is the aggregate block some backends attach to a listing.
type Stats struct {
	TotalRevenueMinor int64          `json:"totalRevenueMinor"`
	ByStatus          map[string]int `json:"byStatus,omitempty"`
}

// Page is one page of transactions.
type Page struct {
	Transactions []domain.Transaction `json:"transactions"`
	CurrentPage  int                  `json:"currentPage"`
	TotalPages   int                  `json:"totalPages"`
	Total        int                  `json:"total"`
	Stats        *Stats               `json:"stats,omitempty"`
}

// Ledger lists, inspects and exports settled payments.
type Ledger struct {
	backend  Backend
	calc     *pricing.Calculator
	validate *validator.Validate
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func New(b Backend, calc *pricing.Calculator, m *metrics.Metrics, log logrus.FieldLogger) *Ledger {
	return &Ledger{
		backend:  b,
		calc:     calc,
		validate: validator.New(),
		metrics:  m,
		log:      log.WithField("component", "ledger"),
	}
}

// List returns one page of transactions matching f.
func (l *Ledger) List(ctx context.Context, f Filters, sess session.Session) (*Page, error) {
	f = f.withDefaults()
	if err := l.validate.Struct(f); err != nil {
		return nil, filterError(err)
	}
	token := sess.Credential()
	if token == "" {
		return nil, domain.SessionExpired()
	}

	resp, err := l.backend.ListPayments(ctx, token, backend.PaymentQuery{
		Status:    f.Status,
		PlanID:    f.PlanID,
		Search:    f.Search,
		Page:      f.Page,
		Limit:     f.PageSize,
		SortBy:    f.SortBy,
		SortOrder: f.SortOrder,
	})
	if err != nil {
		return nil, l.backendError(sess, "list", err)
	}

	page := &Page{
		Transactions: make([]domain.Transaction, 0, len(resp.Payments)),
		CurrentPage:  resp.CurrentPage,
		TotalPages:   resp.TotalPages,
		Total:        resp.Total,
	}
	if page.CurrentPage == 0 {
		page.CurrentPage = f.Page
	}
	for i := range resp.Payments {
		page.Transactions = append(page.Transactions, toTransaction(&resp.Payments[i]))
	}
	if resp.Stats != nil {
		page.Stats = &Stats{
			TotalRevenueMinor: domain.MajorToMinor(resp.Stats.TotalRevenue),
			ByStatus:          resp.Stats.ByStatus,
		}
	}
	return page, nil
}

// Get returns the full detail of one transaction.
func (l *Ledger) Get(ctx context.Context, id string, sess session.Session) (*domain.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrBadRequest("transaction id is required")
	}
	token := sess.Credential()
	if token == "" {
		return nil, domain.SessionExpired()
	}

	p, err := l.backend.GetPayment(ctx, token, id)
	if err != nil {
		return nil, l.backendError(sess, "get", err)
	}
	tx := toTransaction(p)
	return &tx, nil
}

// Breakdown decomposes the transaction's gross amount with the shared calculator.
func (l *Ledger) Breakdown(tx *domain.Transaction) (domain.TaxBreakdown, error) {
	if tx.GrossAmountMinor < 0 {
		return domain.TaxBreakdown{}, domain.ErrInvalid(fmt.Sprintf("transaction %s has a negative amount", tx.TransactionID))
	}
	return l.calc.Breakdown(tx.GrossAmountMinor), nil
}

func (l *Ledger) backendError(sess session.Session, op string, err error) error {
	log := l.log.WithField("op", op)
	if se, ok := backend.AsStatusError(err); ok {
		switch se.Code {
		case http.StatusUnauthorized:
			sess.ClearCredential()
			l.metrics.SessionExpired("ledger_" + op)
			log.Warn("credential rejected by admin endpoint")
			return domain.SessionExpired()
		case http.StatusForbidden:
			return domain.Forbidden("admin access required")
		case http.StatusNotFound:
			msg := se.Message
			if msg == "" {
				msg = "transaction not found"
			}
			return domain.ErrNotFound(msg)
		}
		log.WithError(err).Error("admin payments request failed")
		return domain.ErrInternal("failed to load payments", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	log.WithError(err).Error("unreadable admin payments response")
	return domain.ErrInternal("failed to load payments", err)
}

func toTransaction(p *backend.AdminPayment) domain.Transaction {
	cycle, err := domain.ParseCycle(p.BillingCycle)
	if err != nil {
		cycle = domain.BillingCycle(p.BillingCycle)
	}
	currency, err := domain.ParseCurrency(p.Currency)
	if err != nil {
		currency = domain.Currency(strings.ToUpper(p.Currency))
	}
	return domain.Transaction{
		TransactionID:        p.ID,
		UserID:               p.UserID,
		UserEmail:            p.UserEmail,
		UserName:             p.UserName,
		PlanID:               p.PlanID,
		PlanName:             p.PlanName,
		Cycle:                cycle,
		Currency:             currency,
		GrossAmountMinor:     domain.MajorToMinor(p.Amount),
		Status:               p.Status,
		CreatedAt:            p.CreatedAt,
		GatewayTransactionID: p.GatewayPaymentID,
	}
}

func filterError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrBadRequest(err.Error())
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Page":
		return domain.ErrBadRequest("page must be at least 1")
	case "PageSize":
		return domain.ErrBadRequest(fmt.Sprintf("page size must be between 1 and %d", MaxPageSize))
	case "SortBy":
		return domain.ErrBadRequest("sortBy must be one of: " + fe.Param())
	case "SortOrder":
		return domain.ErrBadRequest("sortOrder must be asc or desc")
	}
	return domain.ErrBadRequest(fmt.Sprintf("%s is too long", strings.ToLower(fe.Field())))
}
