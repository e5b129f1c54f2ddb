package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketroute/marketroute/internal/metrics"
	"github.com/marketroute/marketroute/pkg/model"
)

// CacheConfig controls response caching. TTL is per capability; a
// missing or zero TTL disables caching for that capability. NegativeTTL
// caches definitive failures (not-found, unsupported) so repeated
// lookups for dead symbols stop hitting providers.
type CacheConfig struct {
	TTL         map[model.Capability]time.Duration
	NegativeTTL time.Duration

	// Capacity bounds each capability's in-memory store. Ignored when
	// NewStore is set.
	Capacity int

	// NewStore overrides the backing store per capability, e.g. with a
	// RedisStore. Defaults to an in-memory LRU store.
	NewStore func(capability model.Capability) Store
}

const defaultCacheCapacity = 1024

type negativeEntry struct {
	Kind     model.ErrorKind `json:"kind"`
	Provider string          `json:"provider,omitempty"`
}

type cacheMiddleware struct {
	provider string
	cfg      CacheConfig
	log      *zap.Logger

	positive map[model.Capability]Store
	negative Store
}

func newCacheMiddleware(providerKey string, cfg CacheConfig, log *zap.Logger) *cacheMiddleware {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCacheCapacity
	}
	newStore := cfg.NewStore
	if newStore == nil {
		newStore = func(model.Capability) Store { return NewMemoryStore(cfg.Capacity) }
	}
	positive := make(map[model.Capability]Store)
	for capability, ttl := range cfg.TTL {
		if ttl > 0 && !capability.Streaming() {
			positive[capability] = newStore(capability)
		}
	}
	var negative Store
	if cfg.NegativeTTL > 0 {
		negative = newStore("negative")
	}
	return &cacheMiddleware{
		provider: providerKey,
		cfg:      cfg,
		log:      log,
		positive: positive,
		negative: negative,
	}
}

func (c *cacheMiddleware) Descriptor() Descriptor {
	return Descriptor{Name: nameCache, Position: Position{OuterThan: nameBlacklist}}
}

func (c *cacheMiddleware) Wrap(next Handler) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		capability := req.Call.Capability
		store, cacheable := c.positive[capability]
		if !cacheable && c.negative == nil {
			return next(ctx, req)
		}
		key := req.Fingerprint()

		if cacheable {
			if data, hit, err := store.Get(ctx, key); err == nil && hit {
				resp, derr := decodeResponse(capability, data)
				if derr == nil {
					metrics.IncCacheEvent(c.provider, string(capability), "hit")
					return resp, nil
				}
				c.log.Debug("cache.decode_failed",
					zap.String("provider", c.provider),
					zap.String("capability", string(capability)),
					zap.Error(derr))
			} else if err != nil {
				c.log.Warn("cache.store_get_failed",
					zap.String("provider", c.provider),
					zap.Error(err))
			}
		}
		if c.negative != nil {
			if data, hit, err := c.negative.Get(ctx, key); err == nil && hit {
				metrics.IncCacheEvent(c.provider, string(capability), "negative_hit")
				return nil, c.reviveNegative(data, req)
			}
		}
		metrics.IncCacheEvent(c.provider, string(capability), "miss")

		resp, err := next(ctx, req)
		if err != nil {
			if c.negative != nil && model.IsPermanent(err) {
				c.storeNegative(ctx, key, err)
			}
			return nil, err
		}
		if cacheable {
			if data, merr := json.Marshal(resp); merr == nil {
				if serr := store.Set(ctx, key, data, c.cfg.TTL[capability]); serr != nil {
					c.log.Warn("cache.store_set_failed",
						zap.String("provider", c.provider),
						zap.Error(serr))
				}
			}
		}
		return resp, nil
	}
}

func (c *cacheMiddleware) storeNegative(ctx context.Context, key string, err error) {
	kind, _ := model.KindOf(err)
	data, merr := json.Marshal(negativeEntry{Kind: kind, Provider: c.provider})
	if merr != nil {
		return
	}
	if serr := c.negative.Set(ctx, key, data, c.cfg.NegativeTTL); serr != nil {
		c.log.Warn("cache.negative_set_failed",
			zap.String("provider", c.provider),
			zap.Error(serr))
	}
}

// reviveNegative rebuilds the cached definitive failure for req.
func (c *cacheMiddleware) reviveNegative(data []byte, req Request) error {
	var ent negativeEntry
	if err := json.Unmarshal(data, &ent); err != nil {
		return model.ErrNotFound(instrumentOf(req))
	}
	switch ent.Kind {
	case model.ErrKindUnsupported:
		return model.ErrUnsupported(ent.Provider, req.Call.Capability)
	default:
		return model.ErrNotFound(instrumentOf(req))
	}
}

func instrumentOf(req Request) model.Instrument {
	switch {
	case req.Instrument != nil:
		return *req.Instrument
	case req.History != nil:
		return req.History.Instrument
	}
	return model.Instrument{}
}

func decodeResponse(capability model.Capability, data []byte) (any, error) {
	switch capability {
	case model.CapQuote:
		var q model.Quote
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, err
		}
		return &q, nil
	case model.CapHistory:
		var h model.HistoryResponse
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, err
		}
		return &h, nil
	case model.CapSearch:
		var rs []model.SearchResult
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, err
		}
		return rs, nil
	case model.CapFundamentals:
		var f model.Fundamentals
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return &f, nil
	}
	return nil, fmt.Errorf("no cache decoder for capability %q", capability)
}
