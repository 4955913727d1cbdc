package ameritrade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Alias1177/ameritrade/models"
)

// Dispatcher turns a response body into typed results, using the request URL
// to decide what the untagged JSON is.
type Dispatcher struct {
	catalog *Catalog
	fetcher models.Fetcher
	onToken func(*models.Token)
	logger  zerolog.Logger
}

// NewDispatcher returns a dispatcher for catalog. Items get fetcher as their
// back-reference; onToken, when set, sees every token grant.
func NewDispatcher(catalog *Catalog, fetcher models.Fetcher, onToken func(*models.Token), logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		catalog: catalog,
		fetcher: fetcher,
		onToken: onToken,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// entry is one member of a JSON object, in document order.
type entry struct {
	key   string
	value json.RawMessage
}

// Parse classifies rawURL and decodes body by the endpoint's shape. Single
// object endpoints yield one item.
func (d *Dispatcher) Parse(rawURL string, body []byte) ([]models.ResultItem, error) {
	e, err := d.catalog.Classify(rawURL)
	if err != nil {
		return nil, err
	}
	d.logger.Debug().Str("endpoint", e.Name).Str("shape", e.Shape.String()).Msg("Dispatching response")

	switch e.Shape {
	case SingleObject:
		obj, err := decodeObject(body)
		if err != nil {
			return nil, malformed(e, err)
		}
		return d.single(e, obj)
	case ObjectList:
		list, err := decodeList(body)
		if err != nil {
			return nil, malformed(e, err)
		}
		return d.list(e, list)
	case KeyedList:
		entries, err := decodeEntries(body)
		if err != nil {
			return nil, malformed(e, err)
		}
		return d.keyed(e, entries)
	}
	return nil, fmt.Errorf("endpoint %s has unknown shape %d", e.Name, e.Shape)
}

func (d *Dispatcher) single(e Endpoint, obj map[string]any) ([]models.ResultItem, error) {
	switch e.Name {
	case Token.Name:
		token := models.NewToken(obj, d.fetcher)
		if d.onToken != nil {
			d.onToken(token)
		}
		return []models.ResultItem{token}, nil

	case GetAccount.Name:
		if len(obj) != 1 {
			return nil, malformed(e, fmt.Errorf("expected one account type key, got %d", len(obj)))
		}
		accounts, err := d.accounts(e, obj)
		if err != nil {
			return nil, err
		}
		return []models.ResultItem{accounts[0]}, nil

	case PriceHistory.Name:
		ph, err := models.NewPriceHistory(obj, d.fetcher)
		if err != nil {
			return nil, malformed(e, err)
		}
		return []models.ResultItem{ph}, nil
	}
	return nil, fmt.Errorf("endpoint %s has no single-object handler", e.Name)
}

func (d *Dispatcher) list(e Endpoint, list []map[string]any) ([]models.ResultItem, error) {
	items := make([]models.ResultItem, 0, len(list))
	switch e.Name {
	case GetLinkedAccounts.Name:
		for _, wrapper := range list {
			accounts, err := d.accounts(e, wrapper)
			if err != nil {
				return nil, err
			}
			for _, a := range accounts {
				items = append(items, a)
			}
		}
		return items, nil

	case GetMovers.Name:
		for _, obj := range list {
			items = append(items, models.NewMover(obj, d.fetcher))
		}
		return items, nil
	}
	return nil, fmt.Errorf("endpoint %s has no list handler", e.Name)
}

func (d *Dispatcher) keyed(e Endpoint, entries []entry) ([]models.ResultItem, error) {
	switch e.Name {
	case Quotes.Name:
		items := make([]models.ResultItem, 0, len(entries))
		for _, en := range entries {
			obj, err := decodeObject(en.value)
			if err != nil {
				return nil, malformed(e, fmt.Errorf("quote %s: %w", en.key, err))
			}
			items = append(items, models.NewQuote(en.key, obj, d.fetcher))
		}
		return items, nil

	case GetInstrument.Name:
		switch len(entries) {
		case 0:
			return nil, ErrInstrumentNotFound
		case 1:
		default:
			keys := make([]string, len(entries))
			for i, en := range entries {
				keys[i] = en.key
			}
			return nil, fmt.Errorf("%w: %d matches %v, use a search instead", ErrAmbiguousInstrument, len(keys), keys)
		}
		fallthrough

	case SearchInstruments.Name:
		items := make([]models.ResultItem, 0, len(entries))
		for _, en := range entries {
			obj, err := decodeObject(en.value)
			if err != nil {
				return nil, malformed(e, fmt.Errorf("instrument %s: %w", en.key, err))
			}
			items = append(items, models.NewInstrument(obj, d.fetcher))
		}
		return items, nil
	}
	return nil, fmt.Errorf("endpoint %s has no keyed handler", e.Name)
}

// accounts unwraps {"<accountType>": {...}} objects.
func (d *Dispatcher) accounts(e Endpoint, wrapper map[string]any) ([]*models.Account, error) {
	if len(wrapper) == 0 {
		return nil, malformed(e, fmt.Errorf("empty account wrapper"))
	}
	types := make([]string, 0, len(wrapper))
	for k := range wrapper {
		types = append(types, k)
	}
	sort.Strings(types)

	out := make([]*models.Account, 0, len(types))
	for _, accountType := range types {
		obj, ok := wrapper[accountType].(map[string]any)
		if !ok {
			return nil, malformed(e, fmt.Errorf("account %s is %T, not an object", accountType, wrapper[accountType]))
		}
		out = append(out, models.NewAccount(accountType, obj, d.fetcher))
	}
	return out, nil
}

func malformed(e Endpoint, err error) error {
	return fmt.Errorf("%w from %s (%s): %v", ErrMalformedResponse, e.Name, e.Shape, err)
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

func decodeObject(data []byte) (map[string]any, error) {
	var obj map[string]any
	if err := newDecoder(data).Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected an object, got null")
	}
	return obj, nil
}

func decodeList(data []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := newDecoder(data).Decode(&list); err != nil {
		return nil, err
	}
	for i, obj := range list {
		if obj == nil {
			return nil, fmt.Errorf("element %d is null", i)
		}
	}
	return list, nil
}

// decodeEntries reads a top-level object keeping member order.
func decodeEntries(data []byte) ([]entry, error) {
	dec := newDecoder(data)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var entries []entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value of %s: %w", key, err)
		}
		entries = append(entries, entry{key: key, value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}
