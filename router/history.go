package router

import (
	"context"
	"errors"
	"sync"

	"github.com/marketroute/marketroute/middleware"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// History fetches a candle series for req. Under PriorityFallback the
// first successful provider answers alone; under ExhaustiveMerge every
// ranked provider is queried and the results are merged, earlier ranks
// winning timestamp conflicts.
func (r *Router) History(ctx context.Context, req model.HistoryRequest) (*model.HistoryResponse, error) {
	ctx, cancel := r.withRequestDeadline(ctx)
	defer cancel()

	keys := r.resolver.Rank(req.Instrument, model.CapHistory)
	mwReq := middleware.Request{
		Call:    provider.ExternalCall(model.CapHistory),
		History: &req,
	}

	var (
		resp *model.HistoryResponse
		err  error
	)
	if r.historyStrategy == ExhaustiveMerge {
		resp, err = r.historyMerge(ctx, keys, req, mwReq)
	} else {
		resp, err = r.historyFallback(ctx, keys, req, mwReq)
	}
	if err != nil {
		return nil, err
	}
	if r.resampler != nil && req.Interval > 0 {
		resp.Candles = r.resampler.Resample(resp.Candles, req.Interval)
	}
	return resp, nil
}

func (r *Router) historyFallback(ctx context.Context, keys []provider.Key, req model.HistoryRequest, mwReq middleware.Request) (*model.HistoryResponse, error) {
	var winner provider.Key
	raw, err := r.fallback(ctx, keys, mwReq, func(resp any, key provider.Key) error {
		// An empty series is not an answer; the next ranked provider may
		// still have data for the range.
		if len(resp.(*model.HistoryResponse).Candles) == 0 {
			return model.ErrNotFound(req.Instrument)
		}
		winner = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp := raw.(*model.HistoryResponse)
	if len(resp.Candles) > 0 {
		resp.Attribution = &model.Attribution{
			Instrument: req.Instrument,
			Spans: []model.Span{{
				Provider: string(winner),
				Start:    resp.Candles[0].Ts,
				End:      resp.Candles[len(resp.Candles)-1].Ts,
				Count:    len(resp.Candles),
			}},
		}
	}
	return resp, nil
}

type historyResult struct {
	key  provider.Key
	resp *model.HistoryResponse
	err  error
}

func (r *Router) historyMerge(ctx context.Context, keys []provider.Key, req model.HistoryRequest, mwReq middleware.Request) (*model.HistoryResponse, error) {
	if len(keys) == 0 {
		return nil, model.ErrUnsupported("", model.CapHistory)
	}

	results := make([]historyResult, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key provider.Key) {
			defer wg.Done()
			raw, err := r.attempt(ctx, key, mwReq)
			if err != nil {
				results[i] = historyResult{key: key, err: err}
				return
			}
			results[i] = historyResult{key: key, resp: raw.(*model.HistoryResponse)}
		}(i, key)
	}
	wg.Wait()

	// Successes stay in rank order: the merge gives earlier providers
	// precedence.
	var (
		contributions []contribution
		errs          []error
	)
	for _, res := range results {
		if res.err != nil {
			if model.IsKind(res.err, model.ErrKindRequestTimeout) || errors.Is(res.err, context.Canceled) {
				return nil, res.err
			}
			errs = append(errs, res.err)
			continue
		}
		contributions = append(contributions, contribution{key: string(res.key), resp: res.resp})
	}
	if len(contributions) == 0 {
		return nil, collapseErrors(model.CapHistory, req.Instrument, errs)
	}
	return mergeHistory(req.Instrument, contributions)
}
