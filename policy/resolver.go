package policy

import (
	"sort"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

const unrankedRank = int(^uint(0) >> 1)

// Resolver answers "who serves this request, in what order" from the
// directory and the routing policy.
type Resolver struct {
	dir    *provider.Directory
	policy *Policy
}

func NewResolver(dir *provider.Directory, p *Policy) *Resolver {
	if p == nil {
		p = &Policy{}
	}
	return &Resolver{dir: dir, policy: p}
}

func (r *Resolver) Directory() *provider.Directory { return r.dir }

func (r *Resolver) Policy() *Policy { return r.policy }

// Rank returns the providers serving cap for inst, best first. With no
// applicable rule the order is registration order. A strict best rule
// excludes providers it does not list; a non-strict rule places
// unlisted providers after listed ones, keeping registration order
// among themselves.
func (r *Resolver) Rank(inst model.Instrument, cap model.Capability) []provider.Key {
	supported := r.dir.Supporting(cap)
	rule := r.policy.bestRule(inst, cap)
	if rule == nil {
		return supported
	}

	listed := make(map[provider.Key]int, len(rule.Providers))
	for i, k := range rule.Providers {
		listed[k] = i
	}

	var out []provider.Key
	for _, k := range supported {
		if _, ok := listed[k]; !ok && rule.Strict {
			continue
		}
		out = append(out, k)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, ok := listed[out[i]]
		if !ok {
			ri = unrankedRank
		}
		rj, ok := listed[out[j]]
		if !ok {
			rj = unrankedRank
		}
		return ri < rj
	})
	return out
}

// ProviderRank returns key's position in the ranked list for (inst,
// cap), and whether key is eligible at all. Lower is better.
func (r *Resolver) ProviderRank(inst model.Instrument, cap model.Capability, key provider.Key) (int, bool) {
	for i, k := range r.Rank(inst, cap) {
		if k == key {
			return i, true
		}
	}
	return 0, false
}

// StrictlyExcluded reports whether inst has zero eligible providers for
// cap because a strict rule filtered every supporting provider out.
// Instruments no provider supports at all are not "strictly excluded".
func (r *Resolver) StrictlyExcluded(inst model.Instrument, cap model.Capability) bool {
	if len(r.Rank(inst, cap)) > 0 {
		return false
	}
	rule := r.policy.bestRule(inst, cap)
	return rule != nil && rule.Strict && len(r.dir.Supporting(cap)) > 0
}

// PreferredExchanges exposes the policy's exchange preference ladder.
func (r *Resolver) PreferredExchanges(inst model.Instrument) []model.Exchange {
	return r.policy.PreferredExchanges(inst)
}
