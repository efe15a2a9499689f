package cache

import (
	"context"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CatalogCache fronts the plan catalog with an expiring LRU. A batch run
// looks the same few plans up for thousands of subscriptions; concurrent
// misses for one ID share a single repository read.
type CatalogCache struct {
	next    billing.Catalog
	plans   *lru.LRU[uuid.UUID, billing.Plan]
	periods *lru.LRU[uuid.UUID, billing.BillingPeriod]
	group   singleflight.Group
}

// NewCatalogCache creates a cache holding up to size entries of each kind
// for ttl
func NewCatalogCache(next billing.Catalog, size int, ttl time.Duration) *CatalogCache {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogCache{
		next:    next,
		plans:   lru.NewLRU[uuid.UUID, billing.Plan](size, nil, ttl),
		periods: lru.NewLRU[uuid.UUID, billing.BillingPeriod](size, nil, ttl),
	}
}

// Plan returns a copy of the cached plan, loading it on a miss
func (c *CatalogCache) Plan(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	if p, ok := c.plans.Get(id); ok {
		return &p, nil
	}
	v, err, _ := c.group.Do("plan:"+id.String(), func() (any, error) {
		p, err := c.next.Plan(ctx, id)
		if err != nil {
			return nil, err
		}
		c.plans.Add(id, *p)
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(billing.Plan)
	return &p, nil
}

// BillingPeriod returns a copy of the cached period, loading it on a miss
func (c *CatalogCache) BillingPeriod(ctx context.Context, id uuid.UUID) (*billing.BillingPeriod, error) {
	if bp, ok := c.periods.Get(id); ok {
		return &bp, nil
	}
	v, err, _ := c.group.Do("period:"+id.String(), func() (any, error) {
		bp, err := c.next.BillingPeriod(ctx, id)
		if err != nil {
			return nil, err
		}
		c.periods.Add(id, *bp)
		return *bp, nil
	})
	if err != nil {
		return nil, err
	}
	bp := v.(billing.BillingPeriod)
	return &bp, nil
}

// InvalidatePlan drops a plan after it was written
func (c *CatalogCache) InvalidatePlan(id uuid.UUID) {
	c.plans.Remove(id)
}

// InvalidateBillingPeriod drops a billing period after it was written
func (c *CatalogCache) InvalidateBillingPeriod(id uuid.UUID) {
	c.periods.Remove(id)
}

var (
	_ billing.Catalog            = (*CatalogCache)(nil)
	_ billing.CatalogInvalidator = (*CatalogCache)(nil)
)
