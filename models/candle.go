package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single price candle
type Candle struct {
	Datetime time.Time       `json:"datetime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume"`
}

// candleFromJSON builds a candle from one element of the "candles" array.
// The datetime arrives as epoch milliseconds.
func candleFromJSON(raw map[string]any) (Candle, error) {
	var c Candle

	ts, ok := raw["datetime"]
	if !ok {
		return c, fmt.Errorf("candle without datetime")
	}
	dt, err := epochMillis(ts)
	if err != nil {
		return c, err
	}
	c.Datetime = dt

	prices := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"open", &c.Open},
		{"high", &c.High},
		{"low", &c.Low},
		{"close", &c.Close},
	}
	for _, p := range prices {
		v, ok := raw[p.key]
		if !ok {
			continue
		}
		d, err := toDecimal(v)
		if err != nil {
			return c, fmt.Errorf("candle %s: %w", p.key, err)
		}
		*p.dst = d
	}

	if v, ok := raw["volume"]; ok {
		n, err := toInt(v)
		if err != nil {
			return c, fmt.Errorf("candle volume: %w", err)
		}
		c.Volume = n
	}
	return c, nil
}

// PriceHistory is a time series of candles for one symbol.
type PriceHistory struct {
	Item
	candles []Candle
}

// NewPriceHistory converts the candles once at construction; the raw JSON keeps
// the original epoch values.
func NewPriceHistory(raw map[string]any, f Fetcher) (*PriceHistory, error) {
	ph := &PriceHistory{Item: newItem(raw, f)}

	v, ok := raw["candles"]
	if !ok || v == nil {
		return ph, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("candles is %T, not a list", v)
	}

	ph.candles = make([]Candle, 0, len(list))
	for idx, elem := range list {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("candle %d is %T, not an object", idx, elem)
		}
		c, err := candleFromJSON(m)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", idx, err)
		}
		ph.candles = append(ph.candles, c)
	}
	return ph, nil
}

func (p *PriceHistory) Kind() string { return "PriceHistory" }

func (p *PriceHistory) Symbol() string { return p.Text("symbol") }

// Empty reports the API's "empty" flag.
func (p *PriceHistory) Empty() bool {
	b, _ := p.Bool("empty")
	return b
}

// Candles returns the candles in server order.
func (p *PriceHistory) Candles() []Candle {
	return p.candles
}

// Last returns the most recent candle.
func (p *PriceHistory) Last() (Candle, bool) {
	if len(p.candles) == 0 {
		return Candle{}, false
	}
	return p.candles[len(p.candles)-1], true
}

func (p *PriceHistory) Describe() string {
	extra := []string{fmt.Sprintf("candles: %d", len(p.candles))}
	if len(p.candles) > 0 {
		first, last := p.candles[0], p.candles[len(p.candles)-1]
		extra = append(extra,
			"from: "+first.Datetime.Format(time.RFC3339),
			"to: "+last.Datetime.Format(time.RFC3339),
			"close: "+last.Close.String(),
		)
	}
	return fmt.Sprintf("[ %s ] < symbol: %s, %s >", p.Kind(), p.Symbol(), strings.Join(extra, ", "))
}
