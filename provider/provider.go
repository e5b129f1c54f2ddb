// Package provider defines the boundary between the orchestrator and the
// data providers supplied by the embedding application.
package provider

import (
	"context"

	"github.com/marketroute/marketroute/pkg/model"
)

// Key is a stable provider identity. Registration order of keys is
// meaningful: it is the default ranking when no routing rule applies.
type Key string

func (k Key) String() string { return string(k) }

// Provider is the minimal contract every provider satisfies. A provider
// serves a capability only when it both implements the matching
// interface and lists the capability here.
type Provider interface {
	Key() Key
	Capabilities() []model.Capability
}

type QuoteProvider interface {
	Provider
	Quote(ctx context.Context, inst model.Instrument) (*model.Quote, error)
}

type HistoryProvider interface {
	Provider
	History(ctx context.Context, req model.HistoryRequest) (*model.HistoryResponse, error)
}

type SearchProvider interface {
	Provider
	Search(ctx context.Context, req model.SearchRequest) ([]model.SearchResult, error)
}

type FundamentalsProvider interface {
	Provider
	Fundamentals(ctx context.Context, inst model.Instrument) (*model.Fundamentals, error)
}

// StreamRequest opens one session covering a set of instruments that
// share a (kind, exchange) group.
type StreamRequest struct {
	Instruments []model.Instrument
}

// StreamSession is one live subscription. Updates is closed by the
// provider when the session ends, whether by Close or by failure.
type StreamSession interface {
	Updates() <-chan model.Update
	Close() error
}

type StreamProvider interface {
	Provider
	OpenStream(ctx context.Context, req StreamRequest) (StreamSession, error)
}

// Supports reports whether p serves cap: declared and implemented.
func Supports(p Provider, cap model.Capability) bool {
	declared := false
	for _, c := range p.Capabilities() {
		if c == cap {
			declared = true
			break
		}
	}
	if !declared {
		return false
	}
	switch cap {
	case model.CapQuote:
		_, ok := p.(QuoteProvider)
		return ok
	case model.CapHistory:
		_, ok := p.(HistoryProvider)
		return ok
	case model.CapSearch:
		_, ok := p.(SearchProvider)
		return ok
	case model.CapFundamentals:
		_, ok := p.(FundamentalsProvider)
		return ok
	case model.CapStreamTrades:
		_, ok := p.(StreamProvider)
		return ok
	}
	return false
}
