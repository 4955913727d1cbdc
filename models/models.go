package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoFetcher is returned by lazy accessors on items built without a client.
	ErrNoFetcher = errors.New("item has no client to fetch with")
	// ErrNoQuote is returned when a quote lookup comes back empty.
	ErrNoQuote = errors.New("no quote returned")
)

// SafeKeyPrefix is prepended to JSON keys that are not valid identifiers.
const SafeKeyPrefix = "_"

// SafeKey returns the alias a JSON key is reachable under. Keys that already
// are identifiers are returned unchanged.
func SafeKey(key string) string {
	if isIdentifier(key) {
		return key
	}
	var sb strings.Builder
	sb.WriteString(SafeKeyPrefix)
	for _, r := range key {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

func isIdentifier(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// Item is the common part of every result: the decoded JSON object plus the
// client used for follow-up calls.
type Item struct {
	raw     map[string]any
	aliases map[string]string
	fetcher Fetcher
}

func newItem(raw map[string]any, fetcher Fetcher) Item {
	if raw == nil {
		raw = map[string]any{}
	}
	aliases := make(map[string]string)
	for k := range raw {
		if safe := SafeKey(k); safe != k {
			aliases[safe] = k
		}
	}
	return Item{raw: raw, aliases: aliases, fetcher: fetcher}
}

// Get looks a field up by its original key, falling back to its safe alias.
func (i *Item) Get(field string) (any, bool) {
	if v, ok := i.raw[field]; ok {
		return v, true
	}
	if orig, ok := i.aliases[field]; ok {
		v, ok := i.raw[orig]
		return v, ok
	}
	return nil, false
}

// Raw returns the decoded JSON object.
func (i *Item) Raw() map[string]any {
	return i.raw
}

// Fields returns the decoded object keyed by safe names.
func (i *Item) Fields() map[string]any {
	out := make(map[string]any, len(i.raw))
	for k, v := range i.raw {
		out[SafeKey(k)] = v
	}
	return out
}

// Text returns a field rendered as a string, "" when absent.
func (i *Item) Text(field string) string {
	v, ok := i.Get(field)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Decimal returns a numeric field as a decimal.
func (i *Item) Decimal(field string) (decimal.Decimal, bool) {
	v, ok := i.Get(field)
	if !ok {
		return decimal.Zero, false
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Int returns a numeric field as an int64.
func (i *Item) Int(field string) (int64, bool) {
	v, ok := i.Get(field)
	if !ok {
		return 0, false
	}
	n, err := toInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bool returns a boolean field.
func (i *Item) Bool(field string) (bool, bool) {
	v, ok := i.Get(field)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (i *Item) describe(kind string, extra ...string) string {
	keys := make([]string, 0, len(i.raw))
	for k, v := range i.raw {
		if v == nil || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := append([]string(nil), extra...)
	for _, k := range keys {
		switch v := i.raw[k].(type) {
		case map[string]any, []any:
			parts = append(parts, fmt.Sprintf("%s: {…%d}", SafeKey(k), lenOf(v)))
		default:
			parts = append(parts, fmt.Sprintf("%s: %v", SafeKey(k), v))
		}
	}
	return fmt.Sprintf("[ %s ] < %s >", kind, strings.Join(parts, ", "))
}

func lenOf(v any) int {
	switch t := v.(type) {
	case map[string]any:
		return len(t)
	case []any:
		return len(t)
	}
	return 0
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case string:
		return decimal.NewFromString(n)
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected numeric type %T", v)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		return int64(f), err
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

// lazy memoizes the first successful fetch. There is no invalidation: callers
// that need fresh data discard the item.
type lazy[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
}

func (l *lazy[T]) get(fetch func() (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return l.val, nil
	}
	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	l.val, l.done = v, true
	return v, nil
}

// quoteOf fetches the live quote for symbol.
func quoteOf(ctx context.Context, f Fetcher, symbol string) (*Quote, error) {
	if f == nil {
		return nil, ErrNoFetcher
	}
	quotes, err := f.Quotes(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoQuote, symbol)
	}
	return quotes[0], nil
}

func priceHistoryOf(ctx context.Context, f Fetcher, symbol string, p PriceHistoryParams) (*PriceHistory, error) {
	if f == nil {
		return nil, ErrNoFetcher
	}
	ph, err := f.PriceHistory(ctx, symbol, p)
	if err != nil {
		return nil, fmt.Errorf("fetching price history for %s: %w", symbol, err)
	}
	return ph, nil
}

// Token is an OAuth token grant.
type Token struct {
	Item
}

// NewToken wraps a token grant response.
func NewToken(raw map[string]any, f Fetcher) *Token {
	return &Token{Item: newItem(raw, f)}
}

func (t *Token) Kind() string { return "Token" }

func (t *Token) AccessToken() string  { return t.Text("access_token") }
func (t *Token) RefreshToken() string { return t.Text("refresh_token") }
func (t *Token) TokenType() string    { return t.Text("token_type") }
func (t *Token) Scope() string        { return t.Text("scope") }

// ExpiresIn is the access token lifetime in seconds.
func (t *Token) ExpiresIn() int64 {
	n, _ := t.Int("expires_in")
	return n
}

// Describe never prints token values.
func (t *Token) Describe() string {
	return fmt.Sprintf("[ Token ] < token_type: %s, expires_in: %d, refresh: %t >",
		t.TokenType(), t.ExpiresIn(), t.RefreshToken() != "")
}

// Quote is a market quote for one symbol.
type Quote struct {
	Item
	symbol  string
	history lazy[*PriceHistory]
}

// NewQuote wraps the quote JSON found under symbol.
func NewQuote(symbol string, raw map[string]any, f Fetcher) *Quote {
	return &Quote{Item: newItem(raw, f), symbol: symbol}
}

func (q *Quote) Kind() string { return "Quote" }

// Symbol is the map key the quote was returned under.
func (q *Quote) Symbol() string { return q.symbol }

func (q *Quote) Description() string { return q.Text("description") }
func (q *Quote) AssetType() string   { return q.Text("assetType") }

func (q *Quote) LastPrice() decimal.Decimal {
	d, _ := q.Decimal("lastPrice")
	return d
}

func (q *Quote) BidPrice() decimal.Decimal {
	d, _ := q.Decimal("bidPrice")
	return d
}

func (q *Quote) AskPrice() decimal.Decimal {
	d, _ := q.Decimal("askPrice")
	return d
}

func (q *Quote) Volume() int64 {
	n, _ := q.Int("totalVolume")
	return n
}

// PriceHistory fetches candles for the quote's symbol once; later calls return
// the first result whatever params they pass.
func (q *Quote) PriceHistory(ctx context.Context, p PriceHistoryParams) (*PriceHistory, error) {
	return q.history.get(func() (*PriceHistory, error) {
		return priceHistoryOf(ctx, q.fetcher, q.symbol, p)
	})
}

func (q *Quote) Describe() string {
	return q.describe(q.Kind(), "symbol: "+q.symbol)
}

// Instrument is a security description from the instruments endpoints.
type Instrument struct {
	Item
	quote   lazy[*Quote]
	history lazy[*PriceHistory]
}

func NewInstrument(raw map[string]any, f Fetcher) *Instrument {
	return &Instrument{Item: newItem(raw, f)}
}

func (i *Instrument) Kind() string        { return "Instrument" }
func (i *Instrument) Symbol() string      { return i.Text("symbol") }
func (i *Instrument) Cusip() string       { return i.Text("cusip") }
func (i *Instrument) Description() string { return i.Text("description") }
func (i *Instrument) Exchange() string    { return i.Text("exchange") }
func (i *Instrument) AssetType() string   { return i.Text("assetType") }

// Fundamental returns the nested fundamental section of a "fundamental"
// projection search, if present.
func (i *Instrument) Fundamental() (map[string]any, bool) {
	v, ok := i.Get("fundamental")
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Quote fetches the live quote once per instrument. The cached value goes
// stale; discard the instrument to refresh.
func (i *Instrument) Quote(ctx context.Context) (*Quote, error) {
	return i.quote.get(func() (*Quote, error) {
		return quoteOf(ctx, i.fetcher, i.Symbol())
	})
}

func (i *Instrument) PriceHistory(ctx context.Context, p PriceHistoryParams) (*PriceHistory, error) {
	return i.history.get(func() (*PriceHistory, error) {
		return priceHistoryOf(ctx, i.fetcher, i.Symbol(), p)
	})
}

func (i *Instrument) Describe() string { return i.describe(i.Kind()) }

// Account is one brokerage account, tagged with the key it was nested under.
type Account struct {
	Item
	accountType string
}

func NewAccount(accountType string, raw map[string]any, f Fetcher) *Account {
	return &Account{Item: newItem(raw, f), accountType: accountType}
}

func (a *Account) Kind() string { return "Account" }

// AccountType is the wrapping key, e.g. "securitiesAccount".
func (a *Account) AccountType() string { return a.accountType }

func (a *Account) AccountID() string { return a.Text("accountId") }

// Type is the account's own "type" field (CASH, MARGIN).
func (a *Account) Type() string { return a.Text("type") }

// Balances returns the named balances section ("currentBalances", ...).
func (a *Account) Balances(section string) (map[string]any, bool) {
	v, ok := a.Get(section)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Positions returns the positions list when the "positions" field was requested.
func (a *Account) Positions() []map[string]any {
	v, ok := a.Get("positions")
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, p := range list {
		if m, ok := p.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func (a *Account) Describe() string {
	return a.describe(a.Kind(), "account_type: "+a.accountType)
}

// Mover is one of the day's largest gainers or losers for an index.
type Mover struct {
	Item
	quote lazy[*Quote]
}

func NewMover(raw map[string]any, f Fetcher) *Mover {
	return &Mover{Item: newItem(raw, f)}
}

func (m *Mover) Kind() string        { return "Mover" }
func (m *Mover) Symbol() string      { return m.Text("symbol") }
func (m *Mover) Description() string { return m.Text("description") }
func (m *Mover) Direction() string   { return m.Text("direction") }

func (m *Mover) Change() decimal.Decimal {
	d, _ := m.Decimal("change")
	return d
}

func (m *Mover) LastPrice() decimal.Decimal {
	d, _ := m.Decimal("last")
	return d
}

func (m *Mover) Volume() int64 {
	n, _ := m.Int("totalVolume")
	return n
}

func (m *Mover) Quote(ctx context.Context) (*Quote, error) {
	return m.quote.get(func() (*Quote, error) {
		return quoteOf(ctx, m.fetcher, m.Symbol())
	})
}

func (m *Mover) Describe() string { return m.describe(m.Kind()) }
