package cache

import (
	"context"
	"time"

	"dokon/backend/internal/domain"
)

// RateCache fronts the exchange-rate store so the hot conversion path does
// not hit the database on every sale.
type RateCache interface {
	Get(ctx context.Context, key string) (*domain.ExchangeRate, bool, error)
	Set(ctx context.Context, key string, value *domain.ExchangeRate, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopRateCache struct{}

func (NoopRateCache) Get(_ context.Context, _ string) (*domain.ExchangeRate, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) Set(_ context.Context, _ string, _ *domain.ExchangeRate, _ time.Duration) error {
	return nil
}

func (NoopRateCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
