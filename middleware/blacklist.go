package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketroute/marketroute/internal/metrics"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// BlacklistConfig controls the temporary sit-out applied after a
// provider reports rate limiting. DefaultDuration is used when the
// provider gave no retry-after hint.
type BlacklistConfig struct {
	DefaultDuration time.Duration
}

const defaultBlacklistDuration = 5 * time.Minute

type blacklistMiddleware struct {
	provider string
	cfg      BlacklistConfig
	log      *zap.Logger

	mu    sync.Mutex
	until time.Time

	now func() time.Time
}

func newBlacklistMiddleware(providerKey string, cfg BlacklistConfig, log *zap.Logger) *blacklistMiddleware {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = defaultBlacklistDuration
	}
	return &blacklistMiddleware{provider: providerKey, cfg: cfg, log: log, now: time.Now}
}

func (b *blacklistMiddleware) Descriptor() Descriptor {
	return Descriptor{Name: nameBlacklist, Position: Position{OuterThan: nameQuota}}
}

func (b *blacklistMiddleware) Wrap(next Handler) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		// Orchestrator-initiated calls are exempt: they must be able to
		// probe a sidelined provider.
		if req.Call.Origin != provider.OriginInternal {
			if resetIn, listed := b.check(); listed {
				metrics.IncBlacklistRejection(b.provider)
				return nil, model.ErrBlacklisted(b.provider, resetIn)
			}
		}
		resp, err := next(ctx, req)
		if err != nil {
			b.observe(err)
			return nil, err
		}
		return resp, nil
	}
}

// check reports whether the provider is currently sidelined. Expiry is
// lazy: the entry clears on the first check past its deadline.
func (b *blacklistMiddleware) check() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if b.until.IsZero() || !now.Before(b.until) {
		b.until = time.Time{}
		return 0, false
	}
	return b.until.Sub(now), true
}

// observe trips the blacklist when the failure was a rate limit, using
// the provider's retry-after hint when present.
func (b *blacklistMiddleware) observe(err error) {
	if !model.IsKind(err, model.ErrKindRateLimitExceeded) {
		return
	}
	d := b.cfg.DefaultDuration
	var de *model.Error
	if errors.As(err, &de) && de.RetryAfter != nil {
		d = *de.RetryAfter
	}
	b.mu.Lock()
	b.until = b.now().Add(d)
	b.mu.Unlock()
	metrics.IncBlacklistTrip(b.provider)
	b.log.Warn("blacklist.provider_sidelined",
		zap.String("provider", b.provider),
		zap.Duration("duration", d))
}
