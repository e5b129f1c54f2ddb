package router

import (
	"sort"
	"time"

	"github.com/marketroute/marketroute/pkg/model"
)

// Resampler normalizes a candle series onto a target interval.
// Implementations must keep the series sorted and timestamps unique.
type Resampler interface {
	Resample(candles []model.Candle, target model.Interval) []model.Candle
}

// BucketResampler downsamples by aligning candles to wall-clock
// buckets of the target interval: open from the first candle, close
// from the last, high/low over the bucket, volumes summed. Series
// already at or below the target granularity pass through unchanged.
type BucketResampler struct{}

func (BucketResampler) Resample(candles []model.Candle, target model.Interval) []model.Candle {
	if len(candles) < 2 || target <= 0 {
		return candles
	}
	if InferInterval(candles) >= target {
		return candles
	}

	d := target.Duration()
	out := make([]model.Candle, 0, len(candles))
	var (
		current model.Candle
		open    bool
		bucket  time.Time
	)
	flush := func() {
		if open {
			out = append(out, current)
			open = false
		}
	}
	for _, c := range candles {
		b := c.Ts.Truncate(d)
		if !open || !b.Equal(bucket) {
			flush()
			bucket = b
			current = model.Candle{Ts: b, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
			open = true
			continue
		}
		if c.High.GreaterThan(current.High) {
			current.High = c.High
		}
		if c.Low.LessThan(current.Low) {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume = current.Volume.Add(c.Volume)
	}
	flush()
	return out
}

// InferInterval estimates a series' native interval as the median gap
// between consecutive candles. Zero when the series has fewer than two
// points.
func InferInterval(candles []model.Candle) model.Interval {
	if len(candles) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		gaps = append(gaps, candles[i].Ts.Sub(candles[i-1].Ts))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return model.Interval(gaps[len(gaps)/2])
}
