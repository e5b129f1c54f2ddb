package stream

import (
	"sort"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/policy"
	"github.com/marketroute/marketroute/provider"
)

// group is a set of subscribed instruments sharing kind and exchange,
// served by one session at a time.
type group struct {
	kind        model.AssetKind
	exchange    model.Exchange
	instruments []model.Instrument

	// chain is the failover order: best-scored provider first.
	chain []provider.Key
}

func (g *group) symbols() []string {
	out := make([]string, 0, len(g.instruments))
	for _, inst := range g.instruments {
		out = append(out, inst.ID())
	}
	return out
}

func (g *group) covers(inst model.Instrument) bool {
	id := inst.ID()
	for _, have := range g.instruments {
		if have.ID() == id {
			return true
		}
	}
	return false
}

// plan groups the subscription and ranks a provider chain per group.
// Strictly rejected symbols fail the whole subscription before any
// session is opened; symbols no provider can stream collapse to an
// unsupported error.
func plan(resolver *policy.Resolver, instruments []model.Instrument) ([]*group, error) {
	var rejected []string
	byGroup := make(map[string]*group)
	var order []string
	for _, inst := range instruments {
		if len(resolver.Rank(inst, model.CapStreamTrades)) == 0 {
			if resolver.StrictlyExcluded(inst, model.CapStreamTrades) {
				rejected = append(rejected, inst.Symbol)
			}
			continue
		}
		gk := string(inst.Kind) + "|" + string(inst.Exchange)
		g, ok := byGroup[gk]
		if !ok {
			g = &group{kind: inst.Kind, exchange: inst.Exchange}
			byGroup[gk] = g
			order = append(order, gk)
		}
		g.instruments = append(g.instruments, inst)
	}
	if len(rejected) > 0 {
		return nil, model.ErrStrictSymbolsRejected(rejected)
	}
	if len(byGroup) == 0 {
		return nil, model.ErrUnsupported("", model.CapStreamTrades)
	}

	groups := make([]*group, 0, len(byGroup))
	for _, gk := range order {
		g := byGroup[gk]
		g.chain = rankProviders(resolver, g.instruments)
		groups = append(groups, g)
	}
	return groups, nil
}

// rankProviders scores every provider eligible for at least one of the
// group's instruments by its best per-symbol rank, lower winning.
func rankProviders(resolver *policy.Resolver, instruments []model.Instrument) []provider.Key {
	best := make(map[provider.Key]int)
	var order []provider.Key
	for _, inst := range instruments {
		for rank, key := range resolver.Rank(inst, model.CapStreamTrades) {
			cur, seen := best[key]
			if !seen {
				best[key] = rank
				order = append(order, key)
				continue
			}
			if rank < cur {
				best[key] = rank
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return best[order[i]] < best[order[j]]
	})
	return order
}
