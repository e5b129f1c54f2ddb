package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstrumentCanonicalizesSymbol(t *testing.T) {
	inst := NewInstrument("  aapl ", KindEquity)
	assert.Equal(t, "AAPL", inst.Symbol)
	assert.Equal(t, "AAPL|equity|", inst.ID())
}

func TestParseInstrumentRejectsEmptySymbol(t *testing.T) {
	_, err := ParseInstrument("   ", KindEquity)
	require.Error(t, err)

	_, err = ParseInstrument("", KindCrypto)
	require.Error(t, err)

	inst, err := ParseInstrument(" btc-usd ", KindCrypto)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", inst.Symbol)
}

func TestInstrumentIDIgnoresCurrency(t *testing.T) {
	a := NewInstrument("MSFT", KindEquity).OnExchange("XNAS")
	b := a
	b.Currency = "USD"
	assert.Equal(t, a.ID(), b.ID())
}
