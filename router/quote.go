package router

import (
	"context"
	"sync"

	"github.com/marketroute/marketroute/middleware"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// Quote fetches a snapshot quote for inst, walking ranked providers
// until one answers. When inst pins an exchange, answers reported from
// a different venue are treated as not found and fallback continues.
func (r *Router) Quote(ctx context.Context, inst model.Instrument) (*model.Quote, error) {
	ctx, cancel := r.withRequestDeadline(ctx)
	defer cancel()

	keys := r.resolver.Rank(inst, model.CapQuote)
	req := middleware.Request{
		Call:       provider.ExternalCall(model.CapQuote),
		Instrument: &inst,
	}
	resp, err := r.fallback(ctx, keys, req, func(resp any, key provider.Key) error {
		q := resp.(*model.Quote)
		if inst.Exchange != "" && q.Venue != "" && q.Venue != inst.Exchange {
			return model.ErrNotFound(inst)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp.(*model.Quote), nil
}

// QuoteFailure pairs an instrument with the error that exhausted its
// providers.
type QuoteFailure struct {
	Instrument model.Instrument
	Err        error
}

// Quotes fetches several instruments concurrently. Successes and
// failures are returned together; one dead symbol never fails the
// batch.
func (r *Router) Quotes(ctx context.Context, insts []model.Instrument) ([]model.Quote, []QuoteFailure) {
	var (
		mu       sync.Mutex
		quotes   []model.Quote
		failures []QuoteFailure
		wg       sync.WaitGroup
	)
	for _, inst := range insts {
		wg.Add(1)
		go func(inst model.Instrument) {
			defer wg.Done()
			q, err := r.Quote(ctx, inst)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, QuoteFailure{Instrument: inst, Err: err})
				return
			}
			quotes = append(quotes, *q)
		}(inst)
	}
	wg.Wait()
	return quotes, failures
}

// Fundamentals fetches the profile for inst with priority fallback.
func (r *Router) Fundamentals(ctx context.Context, inst model.Instrument) (*model.Fundamentals, error) {
	ctx, cancel := r.withRequestDeadline(ctx)
	defer cancel()

	keys := r.resolver.Rank(inst, model.CapFundamentals)
	req := middleware.Request{
		Call:       provider.ExternalCall(model.CapFundamentals),
		Instrument: &inst,
	}
	resp, err := r.fallback(ctx, keys, req, func(any, provider.Key) error { return nil })
	if err != nil {
		return nil, err
	}
	return resp.(*model.Fundamentals), nil
}
