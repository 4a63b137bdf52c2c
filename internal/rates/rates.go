// Package rates serves the current sum-per-dollar exchange rate, fronting
// the persistent store with a short-lived cache.
package rates

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"dokon/backend/internal/cache"
	"dokon/backend/internal/currency"
	"dokon/backend/internal/store"
)

const cacheKey = "rates:usd"

type Provider struct {
	repo     store.Repository
	cache    cache.RateCache
	cacheTTL time.Duration
}

func NewProvider(repo store.Repository, cacheStore cache.RateCache, cacheTTL time.Duration) *Provider {
	if cacheStore == nil {
		cacheStore = cache.NoopRateCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Provider{
		repo:     repo,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Current returns the active rate, falling back to the built-in default
// when no rate has ever been stored.
func (p *Provider) Current(ctx context.Context) (decimal.Decimal, error) {
	if cached, ok, err := p.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached.Rate, nil
	}

	rate, err := p.repo.GetExchangeRate(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return currency.DefaultRate, nil
		}
		return decimal.Zero, err
	}
	if err := p.cache.Set(ctx, cacheKey, rate, p.cacheTTL); err != nil {
		log.Printf("[rates] WARN: cache set failed: %v", err)
	}
	return rate.Rate, nil
}

// Update persists a new rate and drops the cached copy so the next read
// sees it immediately.
func (p *Provider) Update(ctx context.Context, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, currency.ErrInvalidRate
	}
	updated, err := p.repo.SetExchangeRate(ctx, rate)
	if err != nil {
		return decimal.Zero, err
	}
	if err := p.cache.Invalidate(ctx, cacheKey); err != nil {
		log.Printf("[rates] WARN: cache invalidate failed: %v", err)
	}
	return updated.Rate, nil
}
