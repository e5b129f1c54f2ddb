package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketroute/marketroute/mock"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/policy"
)

func TestSearchDedupesByPreferredExchange(t *testing.T) {
	p := mock.New("p", model.CapSearch)
	p.SearchFn = func(context.Context, model.SearchRequest) ([]model.SearchResult, error) {
		return []model.SearchResult{
			{Instrument: model.NewInstrument("AAPL", model.KindEquity).OnExchange("XLON"), Name: "Apple (London)"},
			{Instrument: model.NewInstrument("AAPL", model.KindEquity).OnExchange("XNAS"), Name: "Apple (Nasdaq)"},
			{Instrument: model.NewInstrument("SHEL", model.KindEquity).OnExchange("XLON"), Name: "Shell"},
		}, nil
	}
	r := buildRouter(t, NewBuilder().
		WithProviders(p).
		WithPolicy(policy.NewBuilder().PreferExchanges("XNAS", "XLON")))

	results, err := r.Search(context.Background(), model.SearchRequest{Query: "apple"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.Exchange("XNAS"), results[0].Instrument.Exchange, "preferred venue wins the dup")
	assert.Equal(t, "SHEL", results[1].Instrument.Symbol)
}

func TestSearchKeepsFirstWithoutPreference(t *testing.T) {
	p := mock.New("p", model.CapSearch)
	p.SearchFn = func(context.Context, model.SearchRequest) ([]model.SearchResult, error) {
		return []model.SearchResult{
			{Instrument: model.NewInstrument("AAPL", model.KindEquity).OnExchange("XLON")},
			{Instrument: model.NewInstrument("AAPL", model.KindEquity).OnExchange("XNAS")},
		}, nil
	}
	r := buildRouter(t, NewBuilder().WithProviders(p))

	results, err := r.Search(context.Background(), model.SearchRequest{Query: "apple"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.Exchange("XLON"), results[0].Instrument.Exchange)
}

func TestSearchFallsBackAcrossProviders(t *testing.T) {
	broken := mock.New("broken", model.CapSearch)
	broken.SearchFn = func(context.Context, model.SearchRequest) ([]model.SearchResult, error) {
		return nil, assert.AnError
	}
	ok := mock.New("ok", model.CapSearch)
	ok.SearchFn = func(context.Context, model.SearchRequest) ([]model.SearchResult, error) {
		return []model.SearchResult{{Instrument: model.NewInstrument("AAPL", model.KindEquity)}}, nil
	}
	r := buildRouter(t, NewBuilder().WithProviders(broken, ok))

	results, err := r.Search(context.Background(), model.SearchRequest{Query: "apple"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
