package domain

import (
	"fmt"
	"strings"
)

// Tier is a plan's rank used for access comparisons.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierBusiness:   2,
	TierEnterprise: 3,
}

// ParseTier maps a loosely formatted tier name ("Pro", " business ") to a Tier.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	_, ok := tierRank[t]
	return t, ok
}

// Rank returns the tier's position; unknown tiers rank below free.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t grants everything other grants.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// DefaultAnnualDiscount is applied to the annualized monthly price when a plan does not carry its own.
const DefaultAnnualDiscount = 0.15

// Plan is a subscription plan as published by the pricing endpoint.
// BasePriceMinor is the monthly price in INR paise.
type Plan struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Tier           Tier     `json:"tier"`
	BasePriceMinor int64    `json:"basePriceMinor"`
	AnnualDiscount float64  `json:"annualDiscount"`
	Features       []string `json:"features"`
}

// IsFree reports whether the plan never requires a payment.
func (p *Plan) IsFree() bool {
	return p.Tier == TierFree
}

// Discount returns the annual discount rate, falling back to the default.
func (p *Plan) Discount() float64 {
	if p.AnnualDiscount <= 0 || p.AnnualDiscount >= 1 {
		return DefaultAnnualDiscount
	}
	return p.AnnualDiscount
}

// BillingCycle is the recurrence selected for a plan.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// ParseCycle accepts "monthly", "annual" and the backend's "yearly" spelling.
func ParseCycle(s string) (BillingCycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return CycleMonthly, nil
	case "annual", "yearly", "year":
		return CycleAnnual, nil
	}
	return "", ErrBadRequest(fmt.Sprintf("unknown billing cycle %q", s))
}

// Currency is a display currency. INR is always the pricing basis.
type Currency string

const (
	INR Currency = "INR"
	USD Currency = "USD"
)

func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case INR:
		return INR, nil
	case USD:
		return USD, nil
	}
	return "", ErrBadRequest(fmt.Sprintf("unsupported currency %q", s))
}

// Symbol returns the display prefix for the currency.
func (c Currency) Symbol() string {
	switch c {
	case USD:
		return "$"
	case INR:
		return "₹"
	}
	return string(c) + " "
}

// PriceQuote is a derived, immutable price for one plan/cycle/currency combination.
type PriceQuote struct {
	PlanID              string       `json:"planId"`
	Cycle               BillingCycle `json:"cycle"`
	Currency            Currency     `json:"currency"`
	AmountMinor         int64        `json:"amountMinor"`
	OriginalAmountMinor *int64       `json:"originalAmountMinor,omitempty"`
	SavingsMinor        *int64       `json:"savingsMinor,omitempty"`
}

// Amount returns the quoted price as Money.
func (q PriceQuote) Amount() Money {
	return Money{AmountMinor: q.AmountMinor, Currency: q.Currency}
}
