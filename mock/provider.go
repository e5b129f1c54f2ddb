// Package mock provides a scripted provider for tests and local
// development. Responses are configured per capability; unconfigured
// capabilities answer with benign defaults.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// Provider is a configurable fake. The zero value is not usable; use
// New.
type Provider struct {
	key  provider.Key
	caps []model.Capability

	QuoteFn        func(ctx context.Context, inst model.Instrument) (*model.Quote, error)
	HistoryFn      func(ctx context.Context, req model.HistoryRequest) (*model.HistoryResponse, error)
	SearchFn       func(ctx context.Context, req model.SearchRequest) ([]model.SearchResult, error)
	FundamentalsFn func(ctx context.Context, inst model.Instrument) (*model.Fundamentals, error)
	OpenStreamFn   func(ctx context.Context, req provider.StreamRequest) (provider.StreamSession, error)

	// Delay is applied before every call, honoring context cancellation.
	Delay time.Duration

	mu    sync.Mutex
	calls map[model.Capability]int
}

func New(key provider.Key, caps ...model.Capability) *Provider {
	if len(caps) == 0 {
		caps = model.AllCapabilities()
	}
	return &Provider{key: key, caps: caps, calls: make(map[model.Capability]int)}
}

func (p *Provider) Key() provider.Key                { return p.key }
func (p *Provider) Capabilities() []model.Capability { return p.caps }

// Calls reports how many times a capability was invoked.
func (p *Provider) Calls(capability model.Capability) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[capability]
}

func (p *Provider) before(ctx context.Context, capability model.Capability) error {
	p.mu.Lock()
	p.calls[capability]++
	p.mu.Unlock()
	if p.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) Quote(ctx context.Context, inst model.Instrument) (*model.Quote, error) {
	if err := p.before(ctx, model.CapQuote); err != nil {
		return nil, err
	}
	if p.QuoteFn != nil {
		return p.QuoteFn(ctx, inst)
	}
	return &model.Quote{
		Instrument: inst,
		Price:      decimal.NewFromInt(100),
		Currency:   "USD",
		AsOf:       time.Now().UTC(),
		Provider:   string(p.key),
	}, nil
}

func (p *Provider) History(ctx context.Context, req model.HistoryRequest) (*model.HistoryResponse, error) {
	if err := p.before(ctx, model.CapHistory); err != nil {
		return nil, err
	}
	if p.HistoryFn != nil {
		return p.HistoryFn(ctx, req)
	}
	return &model.HistoryResponse{}, nil
}

func (p *Provider) Search(ctx context.Context, req model.SearchRequest) ([]model.SearchResult, error) {
	if err := p.before(ctx, model.CapSearch); err != nil {
		return nil, err
	}
	if p.SearchFn != nil {
		return p.SearchFn(ctx, req)
	}
	return nil, nil
}

func (p *Provider) Fundamentals(ctx context.Context, inst model.Instrument) (*model.Fundamentals, error) {
	if err := p.before(ctx, model.CapFundamentals); err != nil {
		return nil, err
	}
	if p.FundamentalsFn != nil {
		return p.FundamentalsFn(ctx, inst)
	}
	return &model.Fundamentals{Instrument: inst, Provider: string(p.key)}, nil
}

func (p *Provider) OpenStream(ctx context.Context, req provider.StreamRequest) (provider.StreamSession, error) {
	if err := p.before(ctx, model.CapStreamTrades); err != nil {
		return nil, err
	}
	if p.OpenStreamFn != nil {
		return p.OpenStreamFn(ctx, req)
	}
	return NewSession(16), nil
}
