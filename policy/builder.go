package policy

import (
	"fmt"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// Builder assembles a Policy fluently. Rules keep definition order.
type Builder struct {
	policy Policy
}

func NewBuilder() *Builder {
	return &Builder{policy: Policy{
		KindExchanges:   make(map[model.AssetKind][]model.Exchange),
		SymbolExchanges: make(map[string][]model.Exchange),
	}}
}

func (b *Builder) Rule(r Rule) *Builder {
	b.policy.Rules = append(b.policy.Rules, r)
	return b
}

func (b *Builder) PreferExchanges(exs ...model.Exchange) *Builder {
	b.policy.GlobalExchanges = append(b.policy.GlobalExchanges, exs...)
	return b
}

func (b *Builder) PreferExchangesForKind(kind model.AssetKind, exs ...model.Exchange) *Builder {
	b.policy.KindExchanges[kind] = append(b.policy.KindExchanges[kind], exs...)
	return b
}

func (b *Builder) PreferExchangesForSymbol(symbol string, exs ...model.Exchange) *Builder {
	b.policy.SymbolExchanges[symbol] = append(b.policy.SymbolExchanges[symbol], exs...)
	return b
}

// Build validates the policy against the directory: every provider a
// rule names must be registered.
func (b *Builder) Build(dir *provider.Directory) (*Policy, error) {
	for i, r := range b.policy.Rules {
		for _, key := range r.Providers {
			if !dir.Has(key) {
				return nil, fmt.Errorf("routing rule %d names unknown provider %q", i, key)
			}
		}
	}
	p := b.policy
	return &p, nil
}

// Sel builders keep rule literals short in configuration code.

func SymbolIs(s string) *string                   { return &s }
func KindIs(k model.AssetKind) *model.AssetKind   { return &k }
func ExchangeIs(e model.Exchange) *model.Exchange { return &e }
