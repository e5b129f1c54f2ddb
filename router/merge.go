package router

import (
	"sort"

	"github.com/marketroute/marketroute/pkg/model"
)

// contribution is one provider's history response, in priority order.
type contribution struct {
	key  string
	resp *model.HistoryResponse
}

// mergeHistory folds several providers' series into one. The merged
// timeline is the union of timestamps; where providers overlap, the
// earliest-ranked provider's candle wins. Attribution records which
// provider supplied each contiguous region.
func mergeHistory(inst model.Instrument, contributions []contribution) (*model.HistoryResponse, error) {
	if err := checkCurrencies(contributions); err != nil {
		return nil, err
	}

	type owned struct {
		candle   model.Candle
		provider string
	}
	byTs := make(map[int64]owned)
	contributed := make(map[string]bool)
	for _, c := range contributions {
		for _, candle := range c.resp.Candles {
			ts := candle.Ts.UnixNano()
			if _, taken := byTs[ts]; taken {
				continue
			}
			byTs[ts] = owned{candle: candle, provider: c.key}
			contributed[c.key] = true
		}
	}

	timestamps := make([]int64, 0, len(byTs))
	for ts := range byTs {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	merged := &model.HistoryResponse{
		Candles:  make([]model.Candle, 0, len(timestamps)),
		Adjusted: len(contributions) > 0,
	}

	// Adjusted only survives when every contributing series was adjusted.
	anyContribution := false
	for _, c := range contributions {
		if !contributed[c.key] {
			continue
		}
		anyContribution = true
		merged.Adjusted = merged.Adjusted && c.resp.Adjusted
	}
	if !anyContribution {
		merged.Adjusted = false
	}

	// Metadata falls back to the first response carrying any, even one
	// that contributed no candles.
	for _, c := range contributions {
		if c.resp.Meta.Currency != nil || c.resp.Meta.TimeZone != "" {
			merged.Meta = c.resp.Meta
			break
		}
	}

	attribution := &model.Attribution{Instrument: inst}
	for _, ts := range timestamps {
		o := byTs[ts]
		merged.Candles = append(merged.Candles, o.candle)

		spans := attribution.Spans
		if n := len(spans); n > 0 && spans[n-1].Provider == o.provider {
			spans[n-1].End = o.candle.Ts
			spans[n-1].Count++
		} else {
			attribution.Spans = append(spans, model.Span{
				Provider: o.provider,
				Start:    o.candle.Ts,
				End:      o.candle.Ts,
				Count:    1,
			})
		}
	}
	if len(merged.Candles) > 0 {
		merged.Attribution = attribution
	}
	return merged, nil
}

// checkCurrencies fails the merge when providers disagree on the
// series currency. The culprit is the provider voting against the
// majority; responses without a currency abstain.
func checkCurrencies(contributions []contribution) error {
	counts := make(map[string]int)
	order := make([]string, 0, 2)
	for _, c := range contributions {
		cur := c.resp.Meta.Currency
		if cur == nil || *cur == "" {
			continue
		}
		if _, seen := counts[*cur]; !seen {
			order = append(order, *cur)
		}
		counts[*cur]++
	}
	if len(counts) <= 1 {
		return nil
	}

	majority := order[0]
	for _, cur := range order {
		if counts[cur] > counts[majority] {
			majority = cur
		}
	}
	for _, c := range contributions {
		cur := c.resp.Meta.Currency
		if cur == nil || *cur == "" || *cur == majority {
			continue
		}
		return model.ErrCurrencyConflict(c.key, majority, *cur)
	}
	return nil
}
