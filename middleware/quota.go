package middleware

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marketroute/marketroute/internal/metrics"
	"github.com/marketroute/marketroute/pkg/model"
)

// QuotaMode selects how a provider's call budget is spent.
type QuotaMode int

const (
	// QuotaUnit allows up to MaxCalls successful calls per Window, with
	// no pacing inside the window.
	QuotaUnit QuotaMode = iota

	// QuotaEvenSpread splits the window into 24 equal slices and paces
	// consumption so the budget lasts the whole window. A call denied
	// because only the current slice is exhausted carries Remaining > 0
	// and a reset at the next slice boundary.
	QuotaEvenSpread
)

// QuotaConfig caps successful calls per provider. Failed calls do not
// consume budget.
type QuotaConfig struct {
	Mode     QuotaMode
	MaxCalls int
	Window   time.Duration
}

const quotaSlices = 24

type quotaMiddleware struct {
	provider string
	cfg      QuotaConfig

	mu          sync.Mutex
	windowStart time.Time
	usedWindow  int
	sliceStart  time.Time
	usedSlice   int

	now func() time.Time
}

func newQuotaMiddleware(provider string, cfg QuotaConfig) (*quotaMiddleware, error) {
	if cfg.MaxCalls <= 0 {
		return nil, fmt.Errorf("quota for %q: MaxCalls must be positive", provider)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("quota for %q: Window must be positive", provider)
	}
	return &quotaMiddleware{provider: provider, cfg: cfg, now: time.Now}, nil
}

func (q *quotaMiddleware) Descriptor() Descriptor {
	return Descriptor{Name: nameQuota, Position: Position{InnerThan: nameBlacklist}}
}

func (q *quotaMiddleware) Wrap(next Handler) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		if err := q.admit(); err != nil {
			metrics.IncQuotaDenial(q.provider)
			return nil, err
		}
		resp, err := next(ctx, req)
		if err != nil {
			return nil, q.mapError(err)
		}
		q.consume()
		return resp, nil
	}
}

func (q *quotaMiddleware) sliceDuration() time.Duration {
	return q.cfg.Window / quotaSlices
}

func (q *quotaMiddleware) sliceBudget() int {
	b := q.cfg.MaxCalls / quotaSlices
	if b < 1 {
		b = 1
	}
	return b
}

// roll aligns window and slice boundaries to the wall clock and resets
// counters whose period has passed. Caller holds the lock.
func (q *quotaMiddleware) roll(now time.Time) {
	if ws := now.Truncate(q.cfg.Window); !ws.Equal(q.windowStart) {
		q.windowStart = ws
		q.usedWindow = 0
	}
	if q.cfg.Mode == QuotaEvenSpread {
		if ss := now.Truncate(q.sliceDuration()); !ss.Equal(q.sliceStart) {
			q.sliceStart = ss
			q.usedSlice = 0
		}
	}
}

func (q *quotaMiddleware) admit() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.roll(now)

	if q.usedWindow >= q.cfg.MaxCalls {
		resetIn := q.windowStart.Add(q.cfg.Window).Sub(now)
		return model.ErrQuotaExceeded(q.provider, 0, resetIn)
	}
	if q.cfg.Mode == QuotaEvenSpread && q.usedSlice >= q.sliceBudget() {
		remaining := q.cfg.MaxCalls - q.usedWindow
		resetIn := q.sliceStart.Add(q.sliceDuration()).Sub(now)
		return model.ErrQuotaExceeded(q.provider, remaining, resetIn)
	}
	return nil
}

func (q *quotaMiddleware) consume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(q.now())
	q.usedWindow++
	if q.cfg.Mode == QuotaEvenSpread {
		q.usedSlice++
	}
}

// mapError upgrades connector failures that read like provider-side
// throttling into rate-limit errors so the blacklist layer can react.
func (q *quotaMiddleware) mapError(err error) error {
	if kind, ok := model.KindOf(err); ok && kind != model.ErrKindConnector {
		return err
	}
	if looksRateLimited(err.Error()) {
		return model.ErrRateLimited(q.provider, nil)
	}
	return err
}

func looksRateLimited(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "rate limit") ||
		strings.Contains(m, "too many requests") ||
		strings.Contains(m, "429")
}
