package model

import "time"

// Span is a contiguous run of merged candles that all came from the
// same provider. Start and End are inclusive timestamps; Count is the
// number of candles in the run.
type Span struct {
	Provider string    `json:"provider"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Count    int       `json:"count"`
}

// Attribution maps a merged history series back to the providers that
// produced each region of it. Spans are ordered by Start and partition
// the merged timeline: a new span begins exactly where the contributing
// provider changes.
type Attribution struct {
	Instrument Instrument `json:"instrument"`
	Spans      []Span     `json:"spans"`
}
