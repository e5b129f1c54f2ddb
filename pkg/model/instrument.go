package model

import (
	"fmt"
	"strings"
)

// AssetKind classifies an instrument for routing purposes.
type AssetKind string

const (
	KindEquity    AssetKind = "equity"
	KindCrypto    AssetKind = "crypto"
	KindForex     AssetKind = "forex"
	KindIndex     AssetKind = "index"
	KindFund      AssetKind = "fund"
	KindCommodity AssetKind = "commodity"
)

func (k AssetKind) String() string { return string(k) }

// Exchange is a venue identifier (MIC code or venue short name, upper-case).
type Exchange string

func (e Exchange) String() string { return string(e) }

// Instrument identifies a tradable symbol. Exchange and Currency are
// optional: an empty Exchange means "any venue".
type Instrument struct {
	Symbol   string    `json:"symbol"`
	Kind     AssetKind `json:"kind"`
	Exchange Exchange  `json:"exchange,omitempty"`
	Currency string    `json:"currency,omitempty"`
}

// NewInstrument canonicalizes the symbol: surrounding whitespace is
// trimmed and the result upper-cased.
func NewInstrument(symbol string, kind AssetKind) Instrument {
	return Instrument{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Kind: kind}
}

// ParseInstrument is the validating constructor: it rejects symbols
// that are empty after canonicalization.
func ParseInstrument(symbol string, kind AssetKind) (Instrument, error) {
	inst := NewInstrument(symbol, kind)
	if inst.Symbol == "" {
		return Instrument{}, fmt.Errorf("instrument symbol is empty")
	}
	return inst, nil
}

func (i Instrument) OnExchange(ex Exchange) Instrument {
	i.Exchange = Exchange(strings.ToUpper(string(ex)))
	return i
}

// ID returns the routing identity of the instrument: symbol, kind and
// exchange. Currency is descriptive and never part of the identity.
func (i Instrument) ID() string {
	return i.Symbol + "|" + string(i.Kind) + "|" + string(i.Exchange)
}

func (i Instrument) String() string {
	if i.Exchange != "" {
		return i.Symbol + "." + string(i.Exchange)
	}
	return i.Symbol
}
