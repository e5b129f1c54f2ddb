// Package router is the façade of the orchestrator: one entry point per
// capability, provider selection via the routing policy, middleware
// pipelines around every provider call, and failover or merging across
// providers.
package router

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketroute/marketroute/middleware"
	"github.com/marketroute/marketroute/policy"
	"github.com/marketroute/marketroute/provider"
)

// HistoryStrategy selects how history requests use the ranked provider
// list.
type HistoryStrategy int

const (
	// PriorityFallback walks providers best-first and returns the first
	// success.
	PriorityFallback HistoryStrategy = iota

	// ExhaustiveMerge queries every ranked provider concurrently and
	// merges the results, earlier-ranked providers winning conflicts.
	ExhaustiveMerge
)

const defaultProviderTimeout = 10 * time.Second

// Router routes capability requests to providers. Build one with
// NewBuilder; a built Router is safe for concurrent use.
type Router struct {
	resolver  *policy.Resolver
	pipelines map[provider.Key]*middleware.Pipeline

	providerTimeout time.Duration
	requestTimeout  time.Duration
	historyStrategy HistoryStrategy
	resampler       Resampler

	log *zap.Logger
}

// Builder assembles a Router. All configuration is validated in Build.
type Builder struct {
	providers     []provider.Provider
	policyBuilder *policy.Builder
	defaultMW     middleware.Config
	providerMW    map[provider.Key]middleware.Config
	providerTO    time.Duration
	requestTO     time.Duration
	strategy      HistoryStrategy
	resampler     Resampler
	log           *zap.Logger
}

func NewBuilder() *Builder {
	return &Builder{
		providerMW: make(map[provider.Key]middleware.Config),
		providerTO: defaultProviderTimeout,
	}
}

func (b *Builder) WithProviders(ps ...provider.Provider) *Builder {
	b.providers = append(b.providers, ps...)
	return b
}

func (b *Builder) WithPolicy(pb *policy.Builder) *Builder {
	b.policyBuilder = pb
	return b
}

// WithMiddleware sets the default pipeline configuration applied to
// every provider without an override.
func (b *Builder) WithMiddleware(cfg middleware.Config) *Builder {
	b.defaultMW = cfg
	return b
}

func (b *Builder) WithProviderMiddleware(key provider.Key, cfg middleware.Config) *Builder {
	b.providerMW[key] = cfg
	return b
}

// WithProviderTimeout bounds each individual provider call.
func (b *Builder) WithProviderTimeout(d time.Duration) *Builder {
	b.providerTO = d
	return b
}

// WithRequestTimeout bounds a whole fetch including all fallback
// attempts. Zero means unbounded.
func (b *Builder) WithRequestTimeout(d time.Duration) *Builder {
	b.requestTO = d
	return b
}

func (b *Builder) WithHistoryStrategy(s HistoryStrategy) *Builder {
	b.strategy = s
	return b
}

// WithResampler normalizes merged history series onto the requested
// interval. Nil leaves series at provider granularity.
func (b *Builder) WithResampler(r Resampler) *Builder {
	b.resampler = r
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

func (b *Builder) Build() (*Router, error) {
	if len(b.providers) == 0 {
		return nil, fmt.Errorf("router: at least one provider is required")
	}
	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	dir, err := provider.NewDirectory(b.providers...)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	var pol *policy.Policy
	if b.policyBuilder != nil {
		pol, err = b.policyBuilder.Build(dir)
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
	}

	pipelines := make(map[provider.Key]*middleware.Pipeline, len(b.providers))
	for _, p := range b.providers {
		cfg, ok := b.providerMW[p.Key()]
		if !ok {
			cfg = b.defaultMW
		}
		if cfg.Logger == nil {
			cfg.Logger = log
		}
		pipe, err := middleware.Build(p, cfg)
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
		pipelines[p.Key()] = pipe
	}

	return &Router{
		resolver:        policy.NewResolver(dir, pol),
		pipelines:       pipelines,
		providerTimeout: b.providerTO,
		requestTimeout:  b.requestTO,
		historyStrategy: b.strategy,
		resampler:       b.resampler,
		log:             log,
	}, nil
}

// Resolver exposes routing decisions, mainly for the streaming
// coordinator which shares the router's policy.
func (r *Router) Resolver() *policy.Resolver { return r.resolver }
