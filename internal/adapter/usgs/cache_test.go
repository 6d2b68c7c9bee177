package usgs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingFetcher struct {
	calls  int
	result []domain.Observation
	err    error
}

func (m *countingFetcher) SiteSeries(_ context.Context, _ string, _, _ time.Time) ([]domain.Observation, error) {
	m.calls++
	return m.result, m.err
}

var (
	cacheStart = time.Date(2019, 9, 19, 0, 0, 0, 0, time.UTC)
	cacheEnd   = cacheStart.Add(24 * time.Hour)
)

func TestCachedFetcher_Hit(t *testing.T) {
	inner := &countingFetcher{result: []domain.Observation{{LocationID: "usgs-1", Value: 3}}}
	m := observability.NewMetricsForTesting()
	cached := NewCachedFetcher(inner, 10, m)

	r1, err := cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd)
	require.NoError(t, err)
	r2, err := cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.USGSCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.USGSCache.WithLabelValues("miss")))
}

func TestCachedFetcher_DifferentWindowMisses(t *testing.T) {
	inner := &countingFetcher{result: []domain.Observation{{Value: 1}}}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd)
	_, _ = cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd.Add(time.Hour))
	assert.Equal(t, 2, inner.calls)
}

func TestCachedFetcher_EmptyNotCached(t *testing.T) {
	inner := &countingFetcher{}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd)
	_, _ = cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedFetcher_ErrorNotCached(t *testing.T) {
	inner := &countingFetcher{err: errors.New("boom")}
	cached := NewCachedFetcher(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd)
	require.Error(t, err)
	_, err = cached.SiteSeries(context.Background(), "1", cacheStart, cacheEnd)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", []domain.Observation{{Value: 1}})
	c.put("b", []domain.Observation{{Value: 2}})
	_, _ = c.get("a") // a becomes most recent
	c.put("c", []domain.Observation{{Value: 3}})

	_, ok := c.get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}
