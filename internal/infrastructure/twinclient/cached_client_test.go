package twinclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twin_service/internal/domain/model"
)

type countingClient struct {
	localities atomic.Int32
	baselines  atomic.Int32
	predicts   atomic.Int32
	fail       bool
}

func (c *countingClient) GetLocalities(context.Context) (model.Hierarchy, error) {
	c.localities.Add(1)
	if c.fail {
		return nil, errors.New("down")
	}
	return model.Hierarchy{"India": {}}, nil
}

func (c *countingClient) GetBaseline(_ context.Context, locality string) (*model.Baseline, error) {
	c.baselines.Add(1)
	if c.fail {
		return nil, errors.New("down")
	}
	return &model.Baseline{AQI: float64(len(locality))}, nil
}

func (c *countingClient) Predict(context.Context, model.PredictionRequest) (*model.PredictionResult, error) {
	c.predicts.Add(1)
	return &model.PredictionResult{Predictions: []model.TimePoint{{Year: 2026}}}, nil
}

func (c *countingClient) Chat(context.Context, model.ChatRequest) (*model.ChatResponse, error) {
	return &model.ChatResponse{Response: "ok"}, nil
}

func TestCachedClientServesRepeatsFromCache(t *testing.T) {
	inner := &countingClient{}
	c := NewCachedClient(inner, time.Minute, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetLocalities(ctx)
		require.NoError(t, err)
		b, err := c.GetBaseline(ctx, "Kochi")
		require.NoError(t, err)
		b.AQI = -1 // callers get their own copy
	}
	assert.EqualValues(t, 1, inner.localities.Load())
	assert.EqualValues(t, 1, inner.baselines.Load())

	b, err := c.GetBaseline(ctx, "Kochi")
	require.NoError(t, err)
	assert.Equal(t, 5.0, b.AQI)

	_, err = c.GetBaseline(ctx, "Chittur")
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.baselines.Load())
}

func TestCachedClientNeverCachesPredictions(t *testing.T) {
	inner := &countingClient{}
	c := NewCachedClient(inner, time.Minute, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := c.Predict(context.Background(), model.PredictionRequest{Locality: "Kochi"})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, inner.predicts.Load())
}

func TestCachedClientZeroTTLDisables(t *testing.T) {
	inner := &countingClient{}
	c := NewCachedClient(inner, 0, 0)

	for i := 0; i < 2; i++ {
		_, _ = c.GetLocalities(context.Background())
		_, _ = c.GetBaseline(context.Background(), "Kochi")
	}
	assert.EqualValues(t, 2, inner.localities.Load())
	assert.EqualValues(t, 2, inner.baselines.Load())
}

func TestCachedClientExpiresAndFlushes(t *testing.T) {
	inner := &countingClient{}
	c := NewCachedClient(inner, 20*time.Millisecond, time.Minute)

	_, _ = c.GetLocalities(context.Background())
	time.Sleep(40 * time.Millisecond)
	_, _ = c.GetLocalities(context.Background())
	assert.EqualValues(t, 2, inner.localities.Load())

	_, _ = c.GetBaseline(context.Background(), "Kochi")
	c.Flush()
	_, _ = c.GetBaseline(context.Background(), "Kochi")
	assert.EqualValues(t, 2, inner.baselines.Load())
}

func TestCachedClientDoesNotCacheErrors(t *testing.T) {
	inner := &countingClient{fail: true}
	c := NewCachedClient(inner, time.Minute, time.Minute)

	_, err := c.GetBaseline(context.Background(), "Kochi")
	require.Error(t, err)

	inner.fail = false
	b, err := c.GetBaseline(context.Background(), "Kochi")
	require.NoError(t, err)
	assert.Equal(t, 5.0, b.AQI)
}
