package ameritrade

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	httpClient "github.com/Alias1177/ameritrade/internal/platform/http"
	"github.com/Alias1177/ameritrade/models"
)

// Request is a validated, fully resolved API call.
type Request struct {
	Endpoint Endpoint
	Method   string
	URL      string
	// Params holds string, int, int64 or bool values. They become the query
	// string for GET and the form body for POST.
	Params map[string]any
	Header http.Header
}

// Values encodes Params.
func (r *Request) Values() url.Values {
	v := url.Values{}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch p := r.Params[k].(type) {
		case string:
			v.Set(k, p)
		case int:
			v.Set(k, strconv.Itoa(p))
		case int64:
			v.Set(k, strconv.FormatInt(p, 10))
		case bool:
			v.Set(k, strconv.FormatBool(p))
		default:
			v.Set(k, fmt.Sprint(p))
		}
	}
	return v
}

func (r *Request) transport() *httpClient.Request {
	req := &httpClient.Request{
		Method:      r.Method,
		URL:         r.URL,
		Header:      r.Header.Clone(),
		Refreshable: r.Endpoint.Name != Token.Name,
	}
	if r.Method == http.MethodPost {
		req.Form = r.Values()
	} else {
		req.Query = r.Values()
	}
	return req
}

// Builder validates caller parameters and produces requests. It never touches
// the network.
type Builder struct {
	catalog *Catalog
	creds   func() Credentials
}

// NewBuilder returns a builder resolving URLs with catalog; creds supplies the
// configured account id and OAuth values.
func NewBuilder(catalog *Catalog, creds func() Credentials) *Builder {
	return &Builder{catalog: catalog, creds: creds}
}

func (b *Builder) newRequest(e Endpoint, params map[string]any, args ...string) (*Request, error) {
	u, err := b.catalog.URL(e, args...)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	header := http.Header{}
	if e.Method == http.MethodPost {
		header.Set("Content-Type", httpClient.ContentTypeForm)
	} else {
		header.Set("Content-Type", httpClient.ContentTypeJSON)
	}
	return &Request{Endpoint: e, Method: e.Method, URL: u, Params: params, Header: header}, nil
}

// Quotes requests quotes for one or more symbols.
func (b *Builder) Quotes(symbols ...string) (*Request, error) {
	if len(symbols) == 0 {
		return nil, invalid("symbols", symbols, nil, "(at least one symbol is required)")
	}
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			return nil, invalid("symbol", `""`, nil, "(symbols must not be blank)")
		}
		upper = append(upper, s)
	}
	return b.newRequest(Quotes, map[string]any{"symbol": strings.Join(upper, ",")})
}

// PriceHistory requests candles for symbol. See models.PriceHistoryParams for
// the zero-value conventions.
func (b *Builder) PriceHistory(symbol string, p models.PriceHistoryParams) (*Request, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, invalid("symbol", `""`, nil, "(symbol is required)")
	}

	params := map[string]any{}

	periodType := PeriodDay
	if p.PeriodType != "" {
		if _, ok := validPeriods[p.PeriodType]; !ok {
			return nil, invalid("periodType", p.PeriodType, periodTypes, "")
		}
		periodType = p.PeriodType
		params["periodType"] = p.PeriodType
	}

	if p.Period != 0 {
		if !slices.Contains(validPeriods[periodType], p.Period) {
			return nil, invalid("period", p.Period, validPeriods[periodType], "for periodType "+periodType)
		}
		params["period"] = p.Period
	}

	if p.FrequencyType != "" {
		rule, ok := validFrequencies[p.FrequencyType]
		if !ok {
			return nil, invalid("frequencyType", p.FrequencyType, frequencyTypes, "")
		}
		if !slices.Contains(rule.periodTypes, periodType) {
			return nil, invalid("frequencyType", p.FrequencyType, rule.periodTypes, "for periodType "+periodType)
		}
		params["frequencyType"] = p.FrequencyType
	}

	if p.Frequency != 0 {
		if p.FrequencyType != "" {
			allowed := validFrequencies[p.FrequencyType].frequencies
			if !slices.Contains(allowed, p.Frequency) {
				return nil, invalid("frequency", p.Frequency, allowed, "for frequencyType "+p.FrequencyType)
			}
		}
		params["frequency"] = p.Frequency
	}

	if p.StartDate != nil {
		params["startDate"] = models.ToEpochMillis(*p.StartDate)
	}
	if p.EndDate != nil {
		params["endDate"] = models.ToEpochMillis(*p.EndDate)
	}
	if p.StartDate != nil && p.EndDate != nil && p.Period != 0 {
		return nil, invalid("period", p.Period, nil,
			"(startDate and endDate already bound the query; period must not be given with them)")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return nil, invalid("endDate", p.EndDate.UTC(), nil, "(endDate is before startDate)")
	}

	extended := true
	if p.NeedExtendedHoursData != nil {
		extended = *p.NeedExtendedHoursData
	}
	params["needExtendedHoursData"] = extended

	return b.newRequest(PriceHistory, params, symbol)
}

// Instrument requests a single instrument by CUSIP or symbol.
func (b *Builder) Instrument(cusip string) (*Request, error) {
	cusip = strings.TrimSpace(cusip)
	if cusip == "" {
		return nil, invalid("cusip", `""`, nil, "(cusip is required)")
	}
	return b.newRequest(GetInstrument, nil, cusip)
}

// SearchInstruments searches by symbol or description.
func (b *Builder) SearchInstruments(symbol, projection string) (*Request, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, invalid("symbol", `""`, nil, "(symbol is required)")
	}
	if !slices.Contains(validProjections, projection) {
		return nil, invalid("projection", projection, validProjections, "")
	}
	return b.newRequest(SearchInstruments, map[string]any{"symbol": symbol, "projection": projection})
}

// Account requests one account; an empty accountID uses the configured one.
func (b *Builder) Account(accountID string, fields ...string) (*Request, error) {
	if accountID == "" {
		accountID = b.creds().AccountID
	}
	if accountID == "" {
		return nil, invalid("accountId", `""`, nil, "(no account id given or configured)")
	}
	params, err := accountFields(fields)
	if err != nil {
		return nil, err
	}
	return b.newRequest(GetAccount, params, accountID)
}

// LinkedAccounts requests every account linked to the credentials.
func (b *Builder) LinkedAccounts(fields ...string) (*Request, error) {
	params, err := accountFields(fields)
	if err != nil {
		return nil, err
	}
	return b.newRequest(GetLinkedAccounts, params)
}

// accountFields accepts separate names or comma-separated lists.
func accountFields(fields []string) (map[string]any, error) {
	var names []string
	for _, f := range fields {
		for _, name := range strings.Split(f, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !slices.Contains(validAccountFields, name) {
				return nil, invalid("fields", name, validAccountFields, "")
			}
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	return map[string]any{"fields": strings.Join(names, ",")}, nil
}

// Movers requests the top movers of index. direction and change are optional.
func (b *Builder) Movers(index, direction, change string) (*Request, error) {
	index = strings.ToUpper(strings.TrimSpace(index))
	if !slices.Contains(validIndices, index) {
		return nil, invalid("index", index, validIndices, "")
	}
	params := map[string]any{}
	if direction != "" {
		if !slices.Contains(validDirections, direction) {
			return nil, invalid("direction", direction, validDirections, "")
		}
		params["direction"] = direction
	}
	if change != "" {
		if !slices.Contains(validChanges, change) {
			return nil, invalid("change", change, validChanges, "")
		}
		params["change"] = change
	}
	return b.newRequest(GetMovers, params, index)
}

// GrantRefreshToken builds the refresh-token grant.
func (b *Builder) GrantRefreshToken() (*Request, error) {
	creds := b.creds()
	if creds.RefreshToken == "" {
		return nil, ErrNotAuthenticated
	}
	return b.newRequest(Token, map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
		"client_id":     creds.ClientID + clientIDSuffix,
	})
}

// GrantOfflineToken builds the authorization-code exchange that yields an
// offline refresh token.
func (b *Builder) GrantOfflineToken(code string) (*Request, error) {
	if code == "" {
		return nil, invalid("code", `""`, nil, "(authorization code is required)")
	}
	creds := b.creds()
	return b.newRequest(Token, map[string]any{
		"grant_type":   "authorization_code",
		"access_type":  "offline",
		"code":         code,
		"client_id":    creds.ClientID + clientIDSuffix,
		"redirect_uri": creds.RedirectURL,
	})
}

// AuthorizationURL is the page a user opens to obtain an authorization code.
func (b *Builder) AuthorizationURL() string {
	creds := b.creds()
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("redirect_uri", creds.RedirectURL)
	q.Set("client_id", creds.ClientID+clientIDSuffix)
	return AuthURL + "?" + q.Encode()
}
