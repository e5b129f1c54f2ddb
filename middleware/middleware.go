// Package middleware implements the per-provider call pipeline: cache,
// blacklist and quota layers wrapped around the raw provider, with
// construction-time ordering validation.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// Request is the unit of work flowing through a pipeline. Exactly one
// payload field is set, matching Call.Capability.
type Request struct {
	Provider provider.Key
	Call     provider.CallContext

	Instrument *model.Instrument     // quote, fundamentals
	History    *model.HistoryRequest // history
	Search     *model.SearchRequest  // search
}

// Fingerprint identifies the request for caching: capability plus the
// normalized parameters that affect the answer.
func (r Request) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(r.Call.Capability))
	b.WriteByte(':')
	switch r.Call.Capability {
	case model.CapQuote, model.CapFundamentals:
		if r.Instrument != nil {
			b.WriteString(r.Instrument.ID())
		}
	case model.CapHistory:
		if h := r.History; h != nil {
			b.WriteString(h.Instrument.ID())
			b.WriteByte('|')
			b.WriteString(strconv.FormatInt(int64(h.Interval), 10))
			b.WriteByte('|')
			b.WriteString(strconv.FormatInt(h.Start.Unix(), 10))
			b.WriteByte('|')
			b.WriteString(strconv.FormatInt(h.End.Unix(), 10))
			b.WriteByte('|')
			b.WriteString(strconv.FormatBool(h.IncludeAdjusted))
		}
	case model.CapSearch:
		if s := r.Search; s != nil {
			b.WriteString(strings.ToLower(s.Query))
			b.WriteByte('|')
			if s.Kind != nil {
				b.WriteString(string(*s.Kind))
			}
			b.WriteByte('|')
			b.WriteString(strconv.Itoa(s.Limit))
		}
	}
	return b.String()
}

// Handler executes a request and returns the capability's response type
// (*model.Quote, *model.HistoryResponse, []model.SearchResult or
// *model.Fundamentals).
type Handler func(ctx context.Context, req Request) (any, error)

// Middleware wraps a handler. Instances are per provider; any state
// they keep is provider-local.
type Middleware interface {
	Descriptor() Descriptor
	Wrap(next Handler) Handler
}

// Position constrains where a middleware may sit in the stack relative
// to other layers, by name. The zero value is "anywhere".
type Position struct {
	Outermost bool
	OuterThan string
	InnerThan string
}

// Descriptor gives a middleware a stable name for ordering and
// validation.
type Descriptor struct {
	Name     string
	Position Position
}

const (
	nameCache     = "cache"
	nameBlacklist = "blacklist"
	nameQuota     = "quota"
)

// canonicalRank drives enforceOrdering: cache outside blacklist outside
// quota, custom layers innermost.
func canonicalRank(name string) int {
	switch name {
	case nameCache:
		return 0
	case nameBlacklist:
		return 1
	case nameQuota:
		return 2
	}
	return 3
}

// enforceOrdering sorts layers into canonical order, outermost first.
// The sort is stable so custom layers keep their relative order.
func enforceOrdering(mws []Middleware) []Middleware {
	sort.SliceStable(mws, func(i, j int) bool {
		return canonicalRank(mws[i].Descriptor().Name) < canonicalRank(mws[j].Descriptor().Name)
	})
	return mws
}

// validate walks the stack innermost to outermost and checks every
// layer's position constraint against what is inside and outside of it.
// Violations are configuration errors surfaced at build time.
func validate(mws []Middleware) error {
	inside := make(map[string]bool)
	outside := make(map[string]bool, len(mws))
	for _, m := range mws {
		outside[m.Descriptor().Name] = true
	}
	for i := len(mws) - 1; i >= 0; i-- {
		d := mws[i].Descriptor()
		delete(outside, d.Name)
		if d.Position.Outermost && len(outside) > 0 {
			return fmt.Errorf("middleware %q must be outermost but %d layers are outside it", d.Name, len(outside))
		}
		if w := d.Position.OuterThan; w != "" && outside[w] {
			return fmt.Errorf("middleware %q must be outside %q", d.Name, w)
		}
		if w := d.Position.InnerThan; w != "" && inside[w] {
			return fmt.Errorf("middleware %q must be inside %q", d.Name, w)
		}
		inside[d.Name] = true
	}
	return nil
}

// Pipeline is the built call chain for one provider.
type Pipeline struct {
	key     provider.Key
	handler Handler
}

func (p *Pipeline) Key() provider.Key { return p.key }

func (p *Pipeline) Invoke(ctx context.Context, req Request) (any, error) {
	req.Provider = p.key
	return p.handler(ctx, req)
}

// Config selects which layers wrap a provider. Nil sections are
// omitted from the stack.
type Config struct {
	Cache     *CacheConfig
	Blacklist *BlacklistConfig
	Quota     *QuotaConfig

	// Extra layers, placed innermost unless their Position says otherwise.
	Extra []Middleware

	Logger *zap.Logger
}

// Build assembles the pipeline for p: configured layers in canonical
// order around the raw provider call.
func Build(p provider.Provider, cfg Config) (*Pipeline, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var mws []Middleware
	if cfg.Cache != nil {
		mws = append(mws, newCacheMiddleware(string(p.Key()), *cfg.Cache, log))
	}
	if cfg.Blacklist != nil {
		mws = append(mws, newBlacklistMiddleware(string(p.Key()), *cfg.Blacklist, log))
	}
	if cfg.Quota != nil {
		q, err := newQuotaMiddleware(string(p.Key()), *cfg.Quota)
		if err != nil {
			return nil, err
		}
		mws = append(mws, q)
	}
	mws = append(mws, cfg.Extra...)
	mws = enforceOrdering(mws)
	if err := validate(mws); err != nil {
		return nil, fmt.Errorf("provider %q: %w", p.Key(), err)
	}

	h := baseHandler(p)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i].Wrap(h)
	}
	return &Pipeline{key: p.Key(), handler: h}, nil
}

// baseHandler dispatches to the typed provider interface and wraps
// non-taxonomy failures with the provider's identity.
func baseHandler(p provider.Provider) Handler {
	key := string(p.Key())
	return func(ctx context.Context, req Request) (any, error) {
		capability := req.Call.Capability
		if !provider.Supports(p, capability) {
			return nil, model.ErrUnsupported(key, capability)
		}
		var (
			resp any
			err  error
		)
		switch capability {
		case model.CapQuote:
			resp, err = p.(provider.QuoteProvider).Quote(ctx, *req.Instrument)
		case model.CapHistory:
			resp, err = p.(provider.HistoryProvider).History(ctx, *req.History)
		case model.CapSearch:
			resp, err = p.(provider.SearchProvider).Search(ctx, *req.Search)
		case model.CapFundamentals:
			resp, err = p.(provider.FundamentalsProvider).Fundamentals(ctx, *req.Instrument)
		default:
			return nil, model.ErrUnsupported(key, capability)
		}
		if err != nil {
			return nil, tagProviderError(key, err)
		}
		return resp, nil
	}
}

// tagProviderError passes taxonomy errors through untouched and wraps
// everything else as a connector failure attributed to the provider.
func tagProviderError(key string, err error) error {
	var de *model.Error
	if errors.As(err, &de) {
		if de.Provider == "" {
			de.Provider = key
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrProviderTimeout(key)
	}
	return model.ErrConnector(key, err)
}
