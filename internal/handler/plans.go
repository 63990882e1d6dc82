package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tmplstore/billing/internal/catalog"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/metrics"
	"github.com/tmplstore/billing/internal/pricing"
)

// PlansHandler serves plan prices.
type PlansHandler struct {
	catalog *catalog.Catalog
	calc    *pricing.Calculator
	rate    float64
	metrics *metrics.Metrics
}

// NewPlansHandler creates a PlansHandler quoting at the session's fixed exchange rate.
func NewPlansHandler(c *catalog.Catalog, calc *pricing.Calculator, exchangeRate float64, m *metrics.Metrics) *PlansHandler {
	return &PlansHandler{catalog: c, calc: calc, rate: exchangeRate, metrics: m}
}

type displayPrice struct {
	Amount   string `json:"amount"`
	Original string `json:"original,omitempty"`
	Savings  string `json:"savings,omitempty"`
}

type quoteResponse struct {
	Plan         *domain.Plan      `json:"plan"`
	Quote        domain.PriceQuote `json:"quote"`
	Display      displayPrice      `json:"display"`
	ExchangeRate float64           `json:"exchangeRate"`
}

// Quote handles GET /api/plans/{planId}/quote?cycle=&currency=.
func (h *PlansHandler) Quote(w http.ResponseWriter, r *http.Request) {
	cycle, currency, err := quoteParams(r)
	if err != nil {
		Error(w, err)
		return
	}

	plan, err := h.catalog.Get(r.Context(), chi.URLParam(r, "planId"))
	if err != nil {
		Error(w, err)
		return
	}

	resp, err := h.quote(plan, cycle, currency)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// List handles GET /api/plans?ids=free,pro,business&cycle=&currency=.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	cycle, currency, err := quoteParams(r)
	if err != nil {
		Error(w, err)
		return
	}

	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		Error(w, domain.ErrBadRequest("ids is required"))
		return
	}
	if len(ids) > 20 {
		Error(w, domain.ErrBadRequest("at most 20 plans per request"))
		return
	}

	plans, err := h.catalog.List(r.Context(), ids...)
	if err != nil {
		Error(w, err)
		return
	}

	out := make([]quoteResponse, 0, len(plans))
	for _, p := range plans {
		resp, err := h.quote(p, cycle, currency)
		if err != nil {
			Error(w, err)
			return
		}
		out = append(out, resp)
	}
	JSON(w, http.StatusOK, out)
}

func (h *PlansHandler) quote(plan *domain.Plan, cycle domain.BillingCycle, currency domain.Currency) (quoteResponse, error) {
	q, err := h.calc.Quote(plan, cycle, currency, h.rate)
	if err != nil {
		return quoteResponse{}, err
	}
	h.metrics.Quote(string(cycle), string(currency))

	display := displayPrice{Amount: q.Amount().String()}
	if q.OriginalAmountMinor != nil {
		display.Original = domain.Money{AmountMinor: *q.OriginalAmountMinor, Currency: currency}.String()
	}
	if q.SavingsMinor != nil {
		display.Savings = domain.Money{AmountMinor: *q.SavingsMinor, Currency: currency}.String()
	}
	return quoteResponse{Plan: plan, Quote: q, Display: display, ExchangeRate: h.rate}, nil
}

func quoteParams(r *http.Request) (domain.BillingCycle, domain.Currency, error) {
	q := r.URL.Query()
	cycle, err := domain.ParseCycle(withDefault(q.Get("cycle"), "monthly"))
	if err != nil {
		return "", "", err
	}
	currency, err := domain.ParseCurrency(withDefault(q.Get("currency"), "INR"))
	if err != nil {
		return "", "", err
	}
	return cycle, currency, nil
}

func withDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
