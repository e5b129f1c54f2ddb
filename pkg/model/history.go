package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval is the spacing between candles in a history series.
type Interval time.Duration

const (
	IntervalMinute Interval = Interval(time.Minute)
	IntervalHour   Interval = Interval(time.Hour)
	IntervalDay    Interval = Interval(24 * time.Hour)
	IntervalWeek   Interval = Interval(7 * 24 * time.Hour)
)

func (i Interval) Duration() time.Duration { return time.Duration(i) }

// Range is a named lookback window ending now.
type Range time.Duration

const (
	RangeDay   Range = Range(24 * time.Hour)
	RangeWeek  Range = Range(7 * 24 * time.Hour)
	RangeMonth Range = Range(30 * 24 * time.Hour)
	RangeYear  Range = Range(365 * 24 * time.Hour)
)

// Window resolves the range to concrete bounds ending at now.
func (r Range) Window(now time.Time) (start, end time.Time) {
	return now.Add(-time.Duration(r)), now
}

// HistoryRequest asks for candles for one instrument over [Start, End].
// A zero End means "now". IncludeAdjusted requests split/dividend
// adjusted prices where the provider supports them.
type HistoryRequest struct {
	Instrument      Instrument `json:"instrument"`
	Interval        Interval   `json:"interval"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	IncludeAdjusted bool       `json:"include_adjusted"`
}

// Candle is one OHLCV bar. Ts is the bar open time in UTC.
type Candle struct {
	Ts     time.Time       `json:"ts"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// HistoryMeta carries series-level metadata. Currency is nil when the
// provider did not report one.
type HistoryMeta struct {
	Currency *string `json:"currency,omitempty"`
	TimeZone string  `json:"time_zone,omitempty"`
}

// HistoryResponse is a candle series from one provider, or the merged
// product of several. Candles are sorted ascending by Ts with unique
// timestamps. Adjusted reports whether every contributing series was
// adjusted.
type HistoryResponse struct {
	Candles     []Candle     `json:"candles"`
	Meta        HistoryMeta  `json:"meta"`
	Adjusted    bool         `json:"adjusted"`
	Attribution *Attribution `json:"attribution,omitempty"`
}
