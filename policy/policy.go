// Package policy implements capability routing: which providers serve a
// request, and in what order.
package policy

import (
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// Selector narrows a rule to a slice of the instrument space. Nil fields
// match everything.
type Selector struct {
	Symbol   *string
	Kind     *model.AssetKind
	Exchange *model.Exchange
}

func (s Selector) Matches(inst model.Instrument) bool {
	if s.Symbol != nil && *s.Symbol != inst.Symbol {
		return false
	}
	if s.Kind != nil && *s.Kind != inst.Kind {
		return false
	}
	if s.Exchange != nil && *s.Exchange != inst.Exchange {
		return false
	}
	return true
}

// specificity orders selectors: more fields beats fewer; among equal
// counts, symbol outranks kind outranks exchange.
func (s Selector) specificity() int {
	count, bits := 0, 0
	if s.Symbol != nil {
		count++
		bits |= 4
	}
	if s.Kind != nil {
		count++
		bits |= 2
	}
	if s.Exchange != nil {
		count++
		bits |= 1
	}
	return count<<3 | bits
}

// Rule ranks providers for the requests its selector matches. An empty
// Capability applies to every capability. Strict rules exclude providers
// they do not list; non-strict rules rank unlisted providers after
// listed ones, in registration order.
type Rule struct {
	Capability model.Capability
	Selector   Selector
	Providers  []provider.Key
	Strict     bool
}

func (r Rule) appliesTo(cap model.Capability) bool {
	return r.Capability == "" || r.Capability == cap
}

// Policy is an ordered set of rules plus exchange preferences. Later
// rules win specificity ties.
type Policy struct {
	Rules []Rule

	// Exchange preferences drive search-result deduplication. Resolution
	// is symbol over kind over global.
	GlobalExchanges []model.Exchange
	KindExchanges   map[model.AssetKind][]model.Exchange
	SymbolExchanges map[string][]model.Exchange
}

// bestRule picks the applicable rule with the highest selector
// specificity; on ties the later-defined rule wins.
func (p *Policy) bestRule(inst model.Instrument, cap model.Capability) *Rule {
	var best *Rule
	bestSpec := -1
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.appliesTo(cap) || !r.Selector.Matches(inst) {
			continue
		}
		if spec := r.Selector.specificity(); spec >= bestSpec {
			best, bestSpec = r, spec
		}
	}
	return best
}

// PreferredExchanges returns the exchange preference list for inst,
// most specific level first: symbol, then kind, then global.
func (p *Policy) PreferredExchanges(inst model.Instrument) []model.Exchange {
	if exs, ok := p.SymbolExchanges[inst.Symbol]; ok && len(exs) > 0 {
		return exs
	}
	if exs, ok := p.KindExchanges[inst.Kind]; ok && len(exs) > 0 {
		return exs
	}
	return p.GlobalExchanges
}
