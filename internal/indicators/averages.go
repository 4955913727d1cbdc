package indicators

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Alias1177/ameritrade/models"
)

var ErrNotEnoughCandles = errors.New("not enough candles")

// Point is an average value at the close of one candle.
type Point struct {
	Candle models.Candle
	Value  decimal.Decimal
}

func closes(candles []models.Candle, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period {
		return nil, fmt.Errorf("%w: %d for period %d", ErrNotEnoughCandles, len(candles), period)
	}
	prices := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices, nil
}

// SMA returns the simple moving average of closes, one point per candle from
// the period-th on.
func SMA(candles []models.Candle, period int) ([]Point, error) {
	prices, err := closes(candles, period)
	if err != nil {
		return nil, err
	}
	n := decimal.NewFromInt(int64(period))

	sum := decimal.Zero
	out := make([]Point, 0, len(prices)-period+1)
	for i, p := range prices {
		sum = sum.Add(p)
		if i >= period {
			sum = sum.Sub(prices[i-period])
		}
		if i >= period-1 {
			out = append(out, Point{Candle: candles[i], Value: sum.Div(n)})
		}
	}
	return out, nil
}

// EMA returns the exponential moving average of closes, seeded with the SMA
// of the first period candles.
func EMA(candles []models.Candle, period int) ([]Point, error) {
	prices, err := closes(candles, period)
	if err != nil {
		return nil, err
	}

	// Calculate simple moving average for the initial value
	sum := decimal.Zero
	for _, p := range prices[:period] {
		sum = sum.Add(p)
	}
	ema := sum.Div(decimal.NewFromInt(int64(period)))

	// Multiplier for weighting the EMA
	multiplier := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))

	out := make([]Point, 0, len(prices)-period+1)
	out = append(out, Point{Candle: candles[period-1], Value: ema})
	for i := period; i < len(prices); i++ {
		ema = prices[i].Sub(ema).Mul(multiplier).Add(ema)
		out = append(out, Point{Candle: candles[i], Value: ema})
	}
	return out, nil
}

// Last returns the most recent point of an average series.
func Last(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	return points[len(points)-1], true
}
