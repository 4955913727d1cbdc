package models

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Quotes(ctx context.Context, symbols ...string) ([]*Quote, error) {
	args := m.Called(ctx, symbols)
	quotes, _ := args.Get(0).([]*Quote)
	return quotes, args.Error(1)
}

func (m *mockFetcher) PriceHistory(ctx context.Context, symbol string, params PriceHistoryParams) (*PriceHistory, error) {
	args := m.Called(ctx, symbol, params)
	ph, _ := args.Get(0).(*PriceHistory)
	return ph, args.Error(1)
}

func TestSafeKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"lastPrice", "lastPrice"},
		{"_private", "_private"},
		{"52WkHigh", "_52WkHigh"},
		{"52WkLow", "_52WkLow"},
		{"bid-size", "_bid_size"},
		{"a b", "_a_b"},
		{"", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeKey(tt.key))
		})
	}
}

func TestItemAccessors(t *testing.T) {
	raw := map[string]any{
		"symbol":    "AAPL",
		"lastPrice": json.Number("140.01"),
		"52WkHigh":  json.Number("145.09"),
		"volume":    json.Number("1200"),
		"shortable": true,
		"nested":    map[string]any{"a": 1},
	}
	q := NewQuote("AAPL", raw, nil)

	v, ok := q.Get("52WkHigh")
	require.True(t, ok)
	assert.Equal(t, json.Number("145.09"), v)

	v, ok = q.Get("_52WkHigh")
	require.True(t, ok)
	assert.Equal(t, json.Number("145.09"), v)

	_, ok = q.Get("missing")
	assert.False(t, ok)

	assert.Contains(t, q.Raw(), "52WkHigh")
	assert.Contains(t, q.Fields(), "_52WkHigh")
	assert.NotContains(t, q.Fields(), "52WkHigh")

	d, ok := q.Decimal("_52WkHigh")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("145.09").Equal(d))

	n, ok := q.Int("volume")
	require.True(t, ok)
	assert.Equal(t, int64(1200), n)

	b, ok := q.Bool("shortable")
	require.True(t, ok)
	assert.True(t, b)

	_, ok = q.Decimal("symbol")
	assert.False(t, ok)
	assert.Equal(t, "", q.Text("missing"))
	assert.Equal(t, "1200", q.Text("volume"))
}

func TestDescribe(t *testing.T) {
	m := NewMover(map[string]any{
		"symbol":      "TSLA",
		"description": "",
		"change":      json.Number("0.05"),
		"extra":       nil,
	}, nil)
	assert.Equal(t, "[ Mover ] < change: 0.05, symbol: TSLA >", m.Describe())

	a := NewAccount("securitiesAccount", map[string]any{"accountId": "1"}, nil)
	assert.Equal(t, "[ Account ] < account_type: securitiesAccount, accountId: 1 >", a.Describe())

	q := NewQuote("AAPL", map[string]any{"52WkHigh": json.Number("1")}, nil)
	assert.Equal(t, "[ Quote ] < symbol: AAPL, _52WkHigh: 1 >", q.Describe())
}

func TestLazyQuoteFetchesOnce(t *testing.T) {
	f := &mockFetcher{}
	quote := NewQuote("XOM", map[string]any{"lastPrice": json.Number("60")}, f)
	f.On("Quotes", mock.Anything, []string{"XOM"}).Return([]*Quote{quote}, nil).Once()

	inst := NewInstrument(map[string]any{"symbol": "XOM"}, f)

	q1, err := inst.Quote(context.Background())
	require.NoError(t, err)
	q2, err := inst.Quote(context.Background())
	require.NoError(t, err)

	assert.Same(t, quote, q1)
	assert.Same(t, q1, q2)
	f.AssertNumberOfCalls(t, "Quotes", 1)
	f.AssertExpectations(t)
}

func TestLazyQuoteDoesNotCacheFailures(t *testing.T) {
	f := &mockFetcher{}
	boom := errors.New("boom")
	quote := NewQuote("TSLA", nil, f)
	f.On("Quotes", mock.Anything, []string{"TSLA"}).Return(nil, boom).Once()
	f.On("Quotes", mock.Anything, []string{"TSLA"}).Return([]*Quote{quote}, nil).Once()

	m := NewMover(map[string]any{"symbol": "TSLA"}, f)

	_, err := m.Quote(context.Background())
	assert.ErrorIs(t, err, boom)

	q, err := m.Quote(context.Background())
	require.NoError(t, err)
	assert.Same(t, quote, q)
	f.AssertNumberOfCalls(t, "Quotes", 2)
}

func TestLazyQuoteEmpty(t *testing.T) {
	f := &mockFetcher{}
	f.On("Quotes", mock.Anything, []string{"NONE"}).Return([]*Quote{}, nil)

	_, err := NewMover(map[string]any{"symbol": "NONE"}, f).Quote(context.Background())
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestLazyWithoutFetcher(t *testing.T) {
	_, err := NewInstrument(map[string]any{"symbol": "X"}, nil).Quote(context.Background())
	assert.ErrorIs(t, err, ErrNoFetcher)

	_, err = NewQuote("X", nil, nil).PriceHistory(context.Background(), PriceHistoryParams{})
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestLazyPriceHistory(t *testing.T) {
	f := &mockFetcher{}
	params := PriceHistoryParams{PeriodType: "year", Period: 1, FrequencyType: "weekly"}
	ph, err := NewPriceHistory(map[string]any{"symbol": "AAPL"}, f)
	require.NoError(t, err)
	f.On("PriceHistory", mock.Anything, "AAPL", params).Return(ph, nil).Once()

	q := NewQuote("AAPL", nil, f)
	got, err := q.PriceHistory(context.Background(), params)
	require.NoError(t, err)
	assert.Same(t, ph, got)

	// The cached history is returned whatever the later params are.
	got, err = q.PriceHistory(context.Background(), PriceHistoryParams{})
	require.NoError(t, err)
	assert.Same(t, ph, got)
	f.AssertExpectations(t)
}

func TestPriceHistoryCandles(t *testing.T) {
	raw := map[string]any{
		"symbol": "AAPL",
		"empty":  false,
		"candles": []any{
			map[string]any{
				"datetime": json.Number("1609459200000"),
				"open":     json.Number("132.43"),
				"high":     json.Number("133.61"),
				"low":      json.Number("131.72"),
				"close":    json.Number("133"),
				"volume":   json.Number("1200"),
			},
		},
	}
	ph, err := NewPriceHistory(raw, nil)
	require.NoError(t, err)
	require.Len(t, ph.Candles(), 1)

	c := ph.Candles()[0]
	assert.Equal(t, "2021-01-01T00:00:00Z", c.Datetime.Format(time.RFC3339))
	assert.True(t, decimal.RequireFromString("131.72").Equal(c.Low))
	assert.Equal(t, int64(1200), c.Volume)

	// The raw map keeps the epoch value.
	candles := ph.Raw()["candles"].([]any)
	assert.Equal(t, json.Number("1609459200000"), candles[0].(map[string]any)["datetime"])

	assert.Contains(t, ph.Describe(), "candles: 1")
	assert.Contains(t, ph.Describe(), "from: 2021-01-01T00:00:00Z")
}

func TestPriceHistoryErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"candles not a list", map[string]any{"candles": "x"}},
		{"candle not an object", map[string]any{"candles": []any{1}}},
		{"candle without datetime", map[string]any{"candles": []any{map[string]any{"open": 1.0}}}},
		{"bad price", map[string]any{"candles": []any{map[string]any{"datetime": 1.0, "open": true}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPriceHistory(tt.raw, nil)
			assert.Error(t, err)
		})
	}

	ph, err := NewPriceHistory(map[string]any{"symbol": "X", "empty": true}, nil)
	require.NoError(t, err)
	assert.True(t, ph.Empty())
	_, ok := ph.Last()
	assert.False(t, ok)
}

func TestEpochMillis(t *testing.T) {
	want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, FromEpochMillis(1609459200000))
	assert.Equal(t, int64(1609459200000), ToEpochMillis(want))

	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, int64(1609459200000), ToEpochMillis(want.In(est)))

	for _, v := range []any{json.Number("1609459200000"), float64(1609459200000), int64(1609459200000), "1609459200000"} {
		got, err := epochMillis(v)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	}
	_, err := epochMillis(true)
	assert.Error(t, err)
}

func TestTokenDescribeHidesSecrets(t *testing.T) {
	tok := NewToken(map[string]any{
		"access_token":  "secret-access",
		"refresh_token": "secret-refresh",
		"token_type":    "Bearer",
		"expires_in":    json.Number("1800"),
	}, nil)
	assert.Equal(t, "Token", tok.Kind())
	assert.Equal(t, "[ Token ] < token_type: Bearer, expires_in: 1800, refresh: true >", tok.Describe())
}
