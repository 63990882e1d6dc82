// Package pricing derives displayed prices and tax decompositions.
//
// INR is the basis of truth: every figure is computed in INR paise first and
// only then converted for display. Nothing is ever computed from a converted amount.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tmplstore/billing/internal/domain"
)

// DefaultTaxRate is the GST rate applied to all plans.
const DefaultTaxRate = 0.18

var one = decimal.NewFromInt(1)

// Calculator computes quotes and tax breakdowns. It holds no mutable state and is
// safe for concurrent use.
type Calculator struct {
	taxRate decimal.Decimal
	rawRate float64
}

// NewCalculator creates a Calculator for the given tax rate (0.18 = 18%).
func NewCalculator(taxRate float64) *Calculator {
	if taxRate < 0 {
		taxRate = DefaultTaxRate
	}
	return &Calculator{taxRate: decimal.NewFromFloat(taxRate), rawRate: taxRate}
}

// TaxRate returns the configured rate.
func (c *Calculator) TaxRate() float64 {
	return c.rawRate
}

// Quote prices a plan for a cycle in the requested currency. exchangeRate is INR per USD
// and must be the value fixed for the current pricing session.
func (c *Calculator) Quote(plan *domain.Plan, cycle domain.BillingCycle, currency domain.Currency, exchangeRate float64) (domain.PriceQuote, error) {
	if plan == nil {
		return domain.PriceQuote{}, domain.InvalidPlan("plan is required")
	}
	if plan.BasePriceMinor < 0 {
		return domain.PriceQuote{}, domain.InvalidPlan(fmt.Sprintf("plan %s has a negative base price", plan.ID))
	}
	if exchangeRate <= 0 {
		return domain.PriceQuote{}, domain.InvalidRate(fmt.Sprintf("exchange rate must be positive, got %v", exchangeRate))
	}
	if cycle != domain.CycleMonthly && cycle != domain.CycleAnnual {
		return domain.PriceQuote{}, domain.ErrBadRequest(fmt.Sprintf("unknown billing cycle %q", cycle))
	}
	if currency != domain.INR && currency != domain.USD {
		return domain.PriceQuote{}, domain.ErrBadRequest(fmt.Sprintf("unsupported currency %q", currency))
	}

	q := domain.PriceQuote{PlanID: plan.ID, Cycle: cycle, Currency: currency}
	if plan.IsFree() {
		return q, nil
	}

	rate := decimal.NewFromFloat(exchangeRate)
	display := func(inrMinor int64) int64 {
		if currency == domain.INR {
			return inrMinor
		}
		return decimal.NewFromInt(inrMinor).Div(rate).Round(0).IntPart()
	}

	if cycle == domain.CycleMonthly {
		q.AmountMinor = display(plan.BasePriceMinor)
		return q, nil
	}

	original := plan.BasePriceMinor * 12
	annual := AnnualAmount(plan.BasePriceMinor, plan.Discount())
	q.AmountMinor = display(annual)

	// Savings are the difference of the two displayed figures so that
	// original - amount == savings holds in whatever currency is shown.
	if shownOriginal := display(original); shownOriginal > q.AmountMinor {
		savings := shownOriginal - q.AmountMinor
		q.OriginalAmountMinor = &shownOriginal
		q.SavingsMinor = &savings
	}
	return q, nil
}

// AnnualAmount returns round(monthly * 12 * (1 - discount)) in the same unit as monthly.
func AnnualAmount(monthlyMinor int64, discount float64) int64 {
	factor := one.Sub(decimal.NewFromFloat(discount))
	return decimal.NewFromInt(monthlyMinor).Mul(decimal.NewFromInt(12)).Mul(factor).Round(0).IntPart()
}

// Breakdown splits a tax-inclusive gross amount using the configured rate.
func (c *Calculator) Breakdown(grossMinor int64) domain.TaxBreakdown {
	return breakdown(grossMinor, c.taxRate, c.rawRate)
}

// BreakdownAt splits a gross amount at an explicit rate.
func BreakdownAt(grossMinor int64, taxRate float64) domain.TaxBreakdown {
	return breakdown(grossMinor, decimal.NewFromFloat(taxRate), taxRate)
}

// The base is rounded to whole minor units (two decimals of the major unit) and the
// tax is taken by subtraction, so rounding residue always lands in the tax.
func breakdown(grossMinor int64, rate decimal.Decimal, rawRate float64) domain.TaxBreakdown {
	base := decimal.NewFromInt(grossMinor).Div(one.Add(rate)).Round(0).IntPart()
	return domain.TaxBreakdown{
		BaseAmountMinor:  base,
		TaxAmountMinor:   grossMinor - base,
		GrossAmountMinor: grossMinor,
		TaxRate:          rawRate,
	}
}
