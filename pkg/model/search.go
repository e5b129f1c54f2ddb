package model

import "github.com/shopspring/decimal"

// SearchRequest is a free-text instrument lookup. Kind, when set,
// restricts results to one asset kind. Limit <= 0 means provider default.
type SearchRequest struct {
	Query string     `json:"query"`
	Kind  *AssetKind `json:"kind,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

type SearchResult struct {
	Instrument Instrument `json:"instrument"`
	Name       string     `json:"name,omitempty"`
}

// Fundamentals is the company/asset profile for one instrument.
type Fundamentals struct {
	Instrument Instrument      `json:"instrument"`
	Name       string          `json:"name,omitempty"`
	Sector     string          `json:"sector,omitempty"`
	MarketCap  decimal.Decimal `json:"market_cap"`
	Currency   string          `json:"currency,omitempty"`
	Provider   string          `json:"provider,omitempty"`
}
