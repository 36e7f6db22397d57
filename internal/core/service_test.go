package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twin_service/internal/clock"
	"twin_service/internal/domain/model"
)

func TestServiceResolve(t *testing.T) {
	svc := NewService(newFakeTwin(), nil, nil)
	ctx := context.Background()

	p, err := svc.Resolve(ctx, model.Path{City: "Chittur"})
	require.NoError(t, err)
	assert.Equal(t, model.Path{Country: "India", State: "Kerala", District: "Palakkad", City: "Chittur"}, p)

	p, err = svc.Resolve(ctx, model.Path{Country: "India", State: "Kerala", District: "Ernakulam", City: "Kochi"})
	require.NoError(t, err)
	assert.Equal(t, "Kochi", p.City)

	_, err = svc.Resolve(ctx, model.Path{City: "Atlantis"})
	assert.ErrorIs(t, err, model.ErrUnknownLocality)

	_, err = svc.Resolve(ctx, model.Path{Country: "India", State: "Kerala", District: "Ernakulam", City: "Chittur"})
	assert.ErrorIs(t, err, model.ErrUnknownLocality)

	_, err = svc.Resolve(ctx, model.Path{Country: "India", State: "Kerala"})
	assert.ErrorIs(t, err, model.ErrUnknownLocality)
	assert.ErrorContains(t, err, "Ernakulam")
}

func TestServiceOrchestratorsShareRecorderAndOptions(t *testing.T) {
	f := newFakeTwin()
	rec := &memRecorder{}
	clk := clock.Fake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(f, rec, nil, WithClock(clk), WithHorizon(12))

	o := svc.NewOrchestrator()
	assert.Equal(t, 12, o.Snapshot().Horizon)

	require.NoError(t, o.SelectLocality("Kochi"))
	waitFor(t, o, pending)
	clk.Advance(DefaultDebounce)
	call := f.nextCall(t)
	assert.Equal(t, 12, call.req.TimeHorizonYears)
	call.respond(result(70, 70, 30), nil)
	waitFor(t, o, Snapshot.Settled)
	o.Close()

	rec.mu.Lock()
	assert.Len(t, rec.scenarios, 1)
	rec.mu.Unlock()

	chat := svc.NewChatSession()
	assert.Len(t, chat.Messages(), 1)
}

func TestServiceBaselineWrapsErrors(t *testing.T) {
	svc := NewService(newFakeTwin(), nil, nil)

	b, err := svc.Baseline(context.Background(), "Kochi")
	require.NoError(t, err)
	assert.Equal(t, 95.0, b.AQI)

	_, err = svc.Baseline(context.Background(), "Atlantis")
	assert.ErrorContains(t, err, "failed to get baseline for Atlantis")
}
