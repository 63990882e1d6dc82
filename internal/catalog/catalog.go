// Package catalog resolves plan definitions from the pricing endpoint.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/backend"
	"github.com/tmplstore/billing/internal/domain"
	"golang.org/x/sync/errgroup"
)

// PricingSource is the part of the backend client the catalog needs.
type PricingSource interface {
	GetPricing(ctx context.Context, planID string) (*backend.PricingPlan, error)
}

// Catalog is a read-only plan lookup. Fetched plans are kept for the pricing-session
// TTL so a price cannot change between page view and payment submission.
type Catalog struct {
	source   PricingSource
	cache    *lru.LRU[string, domain.Plan]
	discount float64
	log      logrus.FieldLogger
}

// New creates a Catalog caching up to 64 plans for ttl.
func New(source PricingSource, ttl time.Duration, log logrus.FieldLogger) *Catalog {
	return &Catalog{
		source:   source,
		cache:    lru.NewLRU[string, domain.Plan](64, nil, ttl),
		discount: domain.DefaultAnnualDiscount,
		log:      log.WithField("component", "catalog"),
	}
}

// WithDefaultDiscount sets the annual discount used for plans that publish none.
func (c *Catalog) WithDefaultDiscount(d float64) *Catalog {
	if d > 0 && d < 1 {
		c.discount = d
	}
	return c
}

// Get returns the plan with the given id. The returned plan is a copy.
func (c *Catalog) Get(ctx context.Context, planID string) (*domain.Plan, error) {
	if planID == "" {
		return nil, domain.ErrBadRequest("plan is required")
	}
	if p, ok := c.cache.Get(planID); ok {
		return clonePlan(p), nil
	}

	raw, err := c.source.GetPricing(ctx, planID)
	if err != nil {
		if se, ok := backend.AsStatusError(err); ok && se.Code == http.StatusNotFound {
			return nil, domain.ErrNotFound(fmt.Sprintf("plan %q not found", planID))
		}
		if _, ok := domain.AsAppError(err); ok {
			return nil, err
		}
		return nil, domain.ErrInternal("failed to load plan", err)
	}

	plan := fromPricing(planID, raw, c.discount)
	c.cache.Add(planID, plan)
	c.log.WithFields(logrus.Fields{"plan_id": planID, "tier": plan.Tier}).Debug("plan cached")
	return clonePlan(plan), nil
}

// List fetches several plans concurrently, preserving the order of ids.
func (c *Catalog) List(ctx context.Context, ids ...string) ([]*domain.Plan, error) {
	plans := make([]*domain.Plan, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		i, id := i, id // per-iteration copies (go 1.21 loop semantics)
		g.Go(func() error {
			p, err := c.Get(gctx, id)
			if err != nil {
				return err
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// Purge forgets every cached plan, starting a new pricing session.
func (c *Catalog) Purge() {
	c.cache.Purge()
}

func fromPricing(requestedID string, raw *backend.PricingPlan, fallbackDiscount float64) domain.Plan {
	id := raw.ID
	if id == "" {
		id = requestedID
	}

	tier, ok := domain.ParseTier(raw.Tier)
	if !ok {
		tier, ok = domain.ParseTier(id)
	}
	if !ok {
		tier = domain.TierPro
	}
	if raw.MonthlyPrice <= 0 {
		tier = domain.TierFree
	}

	return domain.Plan{
		ID:             id,
		Name:           raw.Name,
		Tier:           tier,
		BasePriceMinor: domain.MajorToMinor(raw.MonthlyPrice),
		AnnualDiscount: discountOf(raw, fallbackDiscount),
		Features:       append([]string(nil), raw.Features...),
	}
}

// discountOf accepts the discount as a fraction (0.15) or a percentage (15). When
// absent it is inferred from the published yearly price.
func discountOf(raw *backend.PricingPlan, fallback float64) float64 {
	d := raw.AnnualDiscount
	if d > 1 {
		d /= 100
	}
	if d <= 0 && raw.YearlyPrice > 0 && raw.MonthlyPrice > 0 {
		d = 1 - raw.YearlyPrice/(raw.MonthlyPrice*12)
	}
	if d <= 0 || d >= 1 {
		return fallback
	}
	return d
}

func clonePlan(p domain.Plan) *domain.Plan {
	p.Features = append([]string(nil), p.Features...)
	return &p
}
