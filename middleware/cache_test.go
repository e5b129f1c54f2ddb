package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

func newQuoteCache(ttl, negTTL time.Duration) *cacheMiddleware {
	return newCacheMiddleware("test", CacheConfig{
		TTL:         map[model.Capability]time.Duration{model.CapQuote: ttl},
		NegativeTTL: negTTL,
	}, zap.NewNop())
}

func TestCacheServesRepeatLookups(t *testing.T) {
	c := newQuoteCache(time.Minute, 0)

	calls := 0
	h := c.Wrap(func(_ context.Context, req Request) (any, error) {
		calls++
		return &model.Quote{Instrument: *req.Instrument, Price: decimal.NewFromInt(101)}, nil
	})

	first, err := h(context.Background(), quoteRequest("AAPL"))
	require.NoError(t, err)
	second, err := h(context.Background(), quoteRequest("AAPL"))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.(*model.Quote).Price.String(), second.(*model.Quote).Price.String())

	// A different instrument is a different fingerprint.
	_, err = h(context.Background(), quoteRequest("MSFT"))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCacheFingerprintCoversHistoryParams(t *testing.T) {
	inst := model.NewInstrument("AAPL", model.KindEquity)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := model.HistoryRequest{Instrument: inst, Interval: model.IntervalDay, Start: start, End: start.AddDate(0, 1, 0)}

	reqA := Request{Call: provider.ExternalCall(model.CapHistory), History: &base}
	differentInterval := base
	differentInterval.Interval = model.IntervalHour
	reqB := Request{Call: provider.ExternalCall(model.CapHistory), History: &differentInterval}
	adjusted := base
	adjusted.IncludeAdjusted = true
	reqC := Request{Call: provider.ExternalCall(model.CapHistory), History: &adjusted}

	assert.NotEqual(t, reqA.Fingerprint(), reqB.Fingerprint())
	assert.NotEqual(t, reqA.Fingerprint(), reqC.Fingerprint())
	assert.Equal(t, reqA.Fingerprint(), reqA.Fingerprint())
}

func TestCacheNegativeCachesNotFound(t *testing.T) {
	c := newQuoteCache(time.Minute, time.Minute)

	calls := 0
	h := c.Wrap(func(_ context.Context, req Request) (any, error) {
		calls++
		return nil, model.ErrNotFound(*req.Instrument)
	})

	_, err := h(context.Background(), quoteRequest("GONE"))
	require.True(t, model.IsNotFound(err))
	_, err = h(context.Background(), quoteRequest("GONE"))
	require.True(t, model.IsNotFound(err))
	assert.Equal(t, 1, calls, "second lookup must be a negative hit")
}

func TestCacheDoesNotCacheTransientFailures(t *testing.T) {
	c := newQuoteCache(time.Minute, time.Minute)

	calls := 0
	h := c.Wrap(func(context.Context, Request) (any, error) {
		calls++
		return nil, model.ErrRateLimited("test", nil)
	})

	for i := 0; i < 2; i++ {
		_, err := h(context.Background(), quoteRequest("AAPL"))
		require.Error(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestCacheZeroTTLDisables(t *testing.T) {
	c := newQuoteCache(0, 0)

	calls := 0
	h := c.Wrap(okHandler(&calls))
	for i := 0; i < 3; i++ {
		_, err := h(context.Background(), quoteRequest("AAPL"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore(10)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), time.Minute))
	_, hit, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, hit)

	now = now.Add(2 * time.Minute)
	_, hit, err = s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, s.Len(), "expired entry is removed on read")
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Minute))

	// Touch "a" so "b" becomes the eviction candidate.
	_, hit, _ := s.Get(ctx, "a")
	require.True(t, hit)

	require.NoError(t, s.Set(ctx, "c", []byte("3"), time.Minute))

	_, hit, _ = s.Get(ctx, "a")
	assert.True(t, hit)
	_, hit, _ = s.Get(ctx, "b")
	assert.False(t, hit)
	_, hit, _ = s.Get(ctx, "c")
	assert.True(t, hit)
}
