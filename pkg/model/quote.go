package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price snapshot for one instrument.
type Quote struct {
	Instrument Instrument      `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	PrevClose  decimal.Decimal `json:"prev_close"`
	Currency   string          `json:"currency,omitempty"`
	Venue      Exchange        `json:"venue,omitempty"`
	AsOf       time.Time       `json:"as_of"`
	Provider   string          `json:"provider,omitempty"`
}
