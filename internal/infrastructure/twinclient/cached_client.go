package twinclient

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"twin_service/internal/domain/model"
)

const localitiesKey = "localities"

// CachedClient keeps the locality hierarchy and baselines for a while.
// Predictions and chat always reach the service.
type CachedClient struct {
	inner      model.TwinClient
	localities *cache.Cache
	baselines  *cache.Cache
}

// NewCachedClient wraps inner. A zero TTL disables that cache.
//
// No janitor runs: the key space is bounded by the city list and expired
// entries are overwritten on the next fetch.
func NewCachedClient(inner model.TwinClient, localitiesTTL, baselineTTL time.Duration) *CachedClient {
	c := &CachedClient{inner: inner}
	if localitiesTTL > 0 {
		c.localities = cache.New(localitiesTTL, 0)
	}
	if baselineTTL > 0 {
		c.baselines = cache.New(baselineTTL, 0)
	}
	return c
}

// GetLocalities returns the cached hierarchy. Callers must not modify it.
func (c *CachedClient) GetLocalities(ctx context.Context) (model.Hierarchy, error) {
	if c.localities != nil {
		if h, ok := c.localities.Get(localitiesKey); ok {
			return h.(model.Hierarchy), nil
		}
	}
	h, err := c.inner.GetLocalities(ctx)
	if err != nil {
		return nil, err
	}
	if c.localities != nil {
		c.localities.Set(localitiesKey, h, cache.DefaultExpiration)
	}
	return h, nil
}

func (c *CachedClient) GetBaseline(ctx context.Context, locality string) (*model.Baseline, error) {
	if c.baselines != nil {
		if b, ok := c.baselines.Get(locality); ok {
			copied := b.(model.Baseline)
			return &copied, nil
		}
	}
	b, err := c.inner.GetBaseline(ctx, locality)
	if err != nil {
		return nil, err
	}
	if c.baselines != nil {
		c.baselines.Set(locality, *b, cache.DefaultExpiration)
	}
	return b, nil
}

func (c *CachedClient) Predict(ctx context.Context, req model.PredictionRequest) (*model.PredictionResult, error) {
	return c.inner.Predict(ctx, req)
}

func (c *CachedClient) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	return c.inner.Chat(ctx, req)
}

// Flush drops everything cached.
func (c *CachedClient) Flush() {
	if c.localities != nil {
		c.localities.Flush()
	}
	if c.baselines != nil {
		c.baselines.Flush()
	}
}
