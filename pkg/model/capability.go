package model

import "fmt"

// Capability names one operation a provider can serve. Routing, quota
// accounting and caching are all keyed by capability.
type Capability string

const (
	CapQuote        Capability = "quote"
	CapHistory      Capability = "history"
	CapSearch       Capability = "search"
	CapFundamentals Capability = "fundamentals"
	CapStreamTrades Capability = "stream-trades"
)

func (c Capability) String() string { return string(c) }

// Streaming reports whether the capability is served by long-lived
// sessions rather than request/response calls.
func (c Capability) Streaming() bool { return c == CapStreamTrades }

func AllCapabilities() []Capability {
	return []Capability{CapQuote, CapHistory, CapSearch, CapFundamentals, CapStreamTrades}
}

func ParseCapability(s string) (Capability, error) {
	for _, c := range AllCapabilities() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}
