package router

import (
	"context"

	"github.com/marketroute/marketroute/middleware"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// Search runs a free-text instrument lookup with priority fallback,
// then deduplicates listings of the same symbol across venues using
// the policy's exchange preferences.
func (r *Router) Search(ctx context.Context, req model.SearchRequest) ([]model.SearchResult, error) {
	ctx, cancel := r.withRequestDeadline(ctx)
	defer cancel()

	// Search is not symbol-scoped; rank with a kind-only probe so
	// kind-selector rules still apply.
	probe := model.Instrument{}
	if req.Kind != nil {
		probe.Kind = *req.Kind
	}
	keys := r.resolver.Rank(probe, model.CapSearch)
	mwReq := middleware.Request{
		Call:   provider.ExternalCall(model.CapSearch),
		Search: &req,
	}
	raw, err := r.fallback(ctx, keys, mwReq, func(any, provider.Key) error { return nil })
	if err != nil {
		return nil, err
	}
	results := raw.([]model.SearchResult)
	return r.dedupeByExchange(results), nil
}

// dedupeByExchange keeps one listing per (symbol, kind): the one on
// the most preferred exchange, or the first seen when no preference
// matches.
func (r *Router) dedupeByExchange(results []model.SearchResult) []model.SearchResult {
	type slot struct {
		idx  int
		rank int
	}
	best := make(map[string]slot)
	order := make([]string, 0, len(results))
	for i, res := range results {
		key := res.Instrument.Symbol + "|" + string(res.Instrument.Kind)
		rank := r.exchangeRank(res.Instrument)
		cur, seen := best[key]
		if !seen {
			best[key] = slot{idx: i, rank: rank}
			order = append(order, key)
			continue
		}
		if rank < cur.rank {
			best[key] = slot{idx: i, rank: rank}
		}
	}
	out := make([]model.SearchResult, 0, len(order))
	for _, key := range order {
		out = append(out, results[best[key].idx])
	}
	return out
}

// exchangeRank positions an instrument's venue in the preference list;
// unlisted venues rank last.
func (r *Router) exchangeRank(inst model.Instrument) int {
	prefs := r.resolver.PreferredExchanges(inst)
	for i, ex := range prefs {
		if ex == inst.Exchange {
			return i
		}
	}
	return len(prefs)
}
