package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

func newTestBlacklist(d time.Duration) (*blacklistMiddleware, *time.Time) {
	b := newBlacklistMiddleware("test", BlacklistConfig{DefaultDuration: d}, zap.NewNop())
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBlacklistTripsOnRateLimit(t *testing.T) {
	b, now := newTestBlacklist(time.Minute)

	calls := 0
	h := b.Wrap(func(context.Context, Request) (any, error) {
		calls++
		return nil, model.ErrRateLimited("test", nil)
	})

	_, err := h(context.Background(), quoteRequest("AAPL"))
	require.True(t, model.IsKind(err, model.ErrKindRateLimitExceeded))
	require.Equal(t, 1, calls)

	// Sidelined: subsequent calls fail fast without touching the provider.
	_, err = h(context.Background(), quoteRequest("AAPL"))
	require.True(t, model.IsKind(err, model.ErrKindTemporarilyBlacklisted))
	var de *model.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, time.Minute, de.ResetIn)
	assert.Equal(t, 1, calls)

	// Expiry is lazy: once the deadline passes the next call goes through.
	*now = now.Add(time.Minute)
	_, err = h(context.Background(), quoteRequest("AAPL"))
	assert.True(t, model.IsKind(err, model.ErrKindRateLimitExceeded))
	assert.Equal(t, 2, calls)
}

func TestBlacklistHonorsRetryAfter(t *testing.T) {
	b, now := newTestBlacklist(time.Minute)

	retryAfter := 10 * time.Minute
	h := b.Wrap(func(context.Context, Request) (any, error) {
		return nil, model.ErrRateLimited("test", &retryAfter)
	})

	_, err := h(context.Background(), quoteRequest("AAPL"))
	require.Error(t, err)

	*now = now.Add(5 * time.Minute)
	_, err = h(context.Background(), quoteRequest("AAPL"))
	require.True(t, model.IsKind(err, model.ErrKindTemporarilyBlacklisted))
	var de *model.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 5*time.Minute, de.ResetIn)
}

func TestBlacklistInternalOriginBypasses(t *testing.T) {
	b, _ := newTestBlacklist(time.Minute)

	calls := 0
	h := b.Wrap(func(context.Context, Request) (any, error) {
		calls++
		if calls == 1 {
			return nil, model.ErrRateLimited("test", nil)
		}
		return &model.Quote{}, nil
	})

	_, err := h(context.Background(), quoteRequest("AAPL"))
	require.Error(t, err)

	// External calls are rejected while sidelined.
	_, err = h(context.Background(), quoteRequest("AAPL"))
	require.True(t, model.IsKind(err, model.ErrKindTemporarilyBlacklisted))

	// Internal calls go straight through.
	inst := model.NewInstrument("AAPL", model.KindEquity)
	req := Request{
		Provider:   "test",
		Call:       provider.InternalCall(model.CapQuote, model.CapHistory, "refresh"),
		Instrument: &inst,
	}
	_, err = h(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBlacklistIgnoresOtherErrors(t *testing.T) {
	b, _ := newTestBlacklist(time.Minute)

	calls := 0
	h := b.Wrap(func(context.Context, Request) (any, error) {
		calls++
		return nil, model.ErrNotFound(model.NewInstrument("GONE", model.KindEquity))
	})

	for i := 0; i < 3; i++ {
		_, err := h(context.Background(), quoteRequest("GONE"))
		require.True(t, model.IsNotFound(err))
	}
	assert.Equal(t, 3, calls, "not-found must never trip the blacklist")
}
