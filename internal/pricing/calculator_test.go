package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmplstore/billing/internal/domain"
)

func proPlan(base int64) *domain.Plan {
	return &domain.Plan{ID: "pro", Name: "Pro", Tier: domain.TierPro, BasePriceMinor: base}
}

func TestQuote_AnnualDiscountAndSavings(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)

	q, err := calc.Quote(proPlan(499), domain.CycleAnnual, domain.INR, 83)
	require.NoError(t, err)

	assert.Equal(t, int64(5090), q.AmountMinor)
	require.NotNil(t, q.OriginalAmountMinor)
	require.NotNil(t, q.SavingsMinor)
	assert.Equal(t, int64(5988), *q.OriginalAmountMinor)
	assert.Equal(t, int64(898), *q.SavingsMinor)
	assert.Equal(t, *q.OriginalAmountMinor-q.AmountMinor, *q.SavingsMinor)
}

func TestQuote_Monthly(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)

	q, err := calc.Quote(proPlan(49900), domain.CycleMonthly, domain.INR, 83)
	require.NoError(t, err)

	assert.Equal(t, int64(49900), q.AmountMinor)
	assert.Nil(t, q.SavingsMinor)
	assert.Nil(t, q.OriginalAmountMinor)
	assert.Equal(t, "₹499.00", q.Amount().String())
}

func TestQuote_USDConversion(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)

	q, err := calc.Quote(proPlan(830000), domain.CycleMonthly, domain.USD, 83)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), q.AmountMinor)
	assert.Equal(t, "$100.00", q.Amount().String())
	assert.Equal(t, "100.00", q.Amount().Major())
}

func TestQuote_USDAnnualSavingsConsistent(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)

	q, err := calc.Quote(proPlan(49900), domain.CycleAnnual, domain.USD, 83.25)
	require.NoError(t, err)

	// 49900*12*0.85 = 508980 paise -> 6114 cents
	assert.Equal(t, int64(6114), q.AmountMinor)
	require.NotNil(t, q.SavingsMinor)
	assert.Equal(t, *q.OriginalAmountMinor-q.AmountMinor, *q.SavingsMinor)
	assert.Greater(t, *q.SavingsMinor, int64(0))
}

func TestQuote_PlanDiscountOverride(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)
	plan := proPlan(1000)
	plan.AnnualDiscount = 0.2

	q, err := calc.Quote(plan, domain.CycleAnnual, domain.INR, 83)
	require.NoError(t, err)
	assert.Equal(t, int64(9600), q.AmountMinor)
	assert.Equal(t, int64(2400), *q.SavingsMinor)
}

func TestQuote_FreeTierAlwaysZero(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)
	free := &domain.Plan{ID: "free", Name: "Free", Tier: domain.TierFree, BasePriceMinor: 49900}

	for _, cycle := range []domain.BillingCycle{domain.CycleMonthly, domain.CycleAnnual} {
		for _, cur := range []domain.Currency{domain.INR, domain.USD} {
			q, err := calc.Quote(free, cycle, cur, 83)
			require.NoError(t, err)
			assert.Zero(t, q.AmountMinor, "%s/%s", cycle, cur)
			assert.Nil(t, q.SavingsMinor)
		}
	}
}

func TestQuote_NeverNegative(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)
	tiers := []domain.Tier{domain.TierPro, domain.TierBusiness, domain.TierEnterprise}

	for base := int64(0); base < 5000; base += 37 {
		for _, tier := range tiers {
			plan := &domain.Plan{ID: string(tier), Tier: tier, BasePriceMinor: base}
			for _, cycle := range []domain.BillingCycle{domain.CycleMonthly, domain.CycleAnnual} {
				for _, cur := range []domain.Currency{domain.INR, domain.USD} {
					q, err := calc.Quote(plan, cycle, cur, 83)
					require.NoError(t, err)
					assert.GreaterOrEqual(t, q.AmountMinor, int64(0))
					if q.SavingsMinor != nil {
						assert.Positive(t, *q.SavingsMinor)
					}
				}
			}
		}
	}
}

func TestQuote_Errors(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)

	tests := []struct {
		name string
		plan *domain.Plan
		rate float64
		kind error
	}{
		{"negative base", proPlan(-1), 83, domain.ErrInvalidPlan},
		{"nil plan", nil, 83, domain.ErrInvalidPlan},
		{"zero rate", proPlan(100), 0, domain.ErrInvalidRate},
		{"negative rate", proPlan(100), -83, domain.ErrInvalidRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Quote(tt.plan, domain.CycleMonthly, domain.USD, tt.rate)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestBreakdown_Scenario(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)

	b := calc.Breakdown(10000)

	assert.Equal(t, int64(8475), b.BaseAmountMinor)
	assert.Equal(t, int64(1525), b.TaxAmountMinor)
	assert.Equal(t, int64(10000), b.GrossAmountMinor)
	assert.Equal(t, 0.18, b.TaxRate)
}

func TestBreakdown_SumsToGross(t *testing.T) {
	calc := NewCalculator(DefaultTaxRate)

	for gross := int64(0); gross <= 50000; gross++ {
		b := calc.Breakdown(gross)
		if b.BaseAmountMinor+b.TaxAmountMinor != gross {
			t.Fatalf("gross %d: base %d + tax %d != gross", gross, b.BaseAmountMinor, b.TaxAmountMinor)
		}
		if b.TaxAmountMinor < 0 {
			t.Fatalf("gross %d: negative tax %d", gross, b.TaxAmountMinor)
		}
	}
}

func TestBreakdownAt_ZeroRate(t *testing.T) {
	b := BreakdownAt(12345, 0)
	assert.Equal(t, int64(12345), b.BaseAmountMinor)
	assert.Zero(t, b.TaxAmountMinor)
}

func TestAnnualAmount(t *testing.T) {
	assert.Equal(t, int64(5090), AnnualAmount(499, 0.15))
	assert.Equal(t, int64(0), AnnualAmount(0, 0.15))
	assert.Equal(t, int64(1200), AnnualAmount(100, 0))
}
