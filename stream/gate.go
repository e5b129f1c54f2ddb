package stream

import (
	"sync"
	"time"
)

const (
	defaultGateTTL      = 24 * time.Hour
	defaultReapInterval = 15 * time.Minute
)

type gateEntry struct {
	lastTs   time.Time
	lastSeen time.Time
}

// MonotonicGate enforces per-symbol timestamp monotonicity across
// provider sessions: an update passes only when strictly newer than
// the last one that passed for its symbol. Idle entries are reaped so
// long-running subscriptions do not accumulate dead symbols.
type MonotonicGate struct {
	mu      sync.Mutex
	entries map[string]*gateEntry
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

func NewMonotonicGate(ttl, reapInterval time.Duration) *MonotonicGate {
	if ttl <= 0 {
		ttl = defaultGateTTL
	}
	if reapInterval <= 0 {
		reapInterval = defaultReapInterval
	}
	g := &MonotonicGate{
		entries: make(map[string]*gateEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go g.reapLoop(reapInterval)
	return g
}

// Allow reports whether an update at ts may pass for symbol, and
// records it when it may. Equal timestamps are duplicates and do not
// pass.
func (g *MonotonicGate) Allow(symbol string, ts time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	ent, ok := g.entries[symbol]
	if !ok {
		g.entries[symbol] = &gateEntry{lastTs: ts, lastSeen: now}
		return true
	}
	ent.lastSeen = now
	if !ts.After(ent.lastTs) {
		return false
	}
	ent.lastTs = ts
	return true
}

// ResetSymbols forgets gate state for symbols migrating to another
// provider, so the new session's first update always passes.
func (g *MonotonicGate) ResetSymbols(symbols []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range symbols {
		delete(g.entries, s)
	}
}

func (g *MonotonicGate) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *MonotonicGate) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.reap()
		case <-g.stop:
			return
		}
	}
}

func (g *MonotonicGate) reap() {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-g.ttl)
	for s, ent := range g.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(g.entries, s)
		}
	}
}

func (g *MonotonicGate) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
