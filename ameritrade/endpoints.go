package ameritrade

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

const (
	DefaultRoot = "https://api.tdameritrade.com/v1"
	AuthURL     = "https://auth.tdameritrade.com/auth"
)

// Shape is the JSON layout an endpoint responds with.
type Shape int

const (
	// SingleObject is one JSON object.
	SingleObject Shape = iota
	// ObjectList is a JSON array of objects.
	ObjectList
	// KeyedList is a JSON object whose values are objects keyed by symbol.
	KeyedList
)

func (s Shape) String() string {
	return [...]string{"single-object", "list-of-objects", "map-keyed-list"}[s]
}

// Endpoint is one REST operation. Path is relative to the catalog root and
// may contain whole-segment {slot} placeholders.
type Endpoint struct {
	Name   string
	Method string
	Path   string
	Shape  Shape
}

var (
	Token             = Endpoint{"TOKEN", http.MethodPost, "/oauth2/token", SingleObject}
	Quotes            = Endpoint{"QUOTES", http.MethodGet, "/marketdata/quotes", KeyedList}
	PriceHistory      = Endpoint{"PRICE_HISTORY", http.MethodGet, "/marketdata/{symbol}/pricehistory", SingleObject}
	GetInstrument     = Endpoint{"GET_INSTRUMENT", http.MethodGet, "/instruments/{cusip}", KeyedList}
	SearchInstruments = Endpoint{"SEARCH_INSTRUMENTS", http.MethodGet, "/instruments", KeyedList}
	GetAccount        = Endpoint{"GET_ACCOUNT", http.MethodGet, "/accounts/{accountId}", SingleObject}
	GetLinkedAccounts = Endpoint{"GET_LINKED_ACCOUNTS", http.MethodGet, "/accounts", ObjectList}
	GetMovers         = Endpoint{"GET_MOVERS", http.MethodGet, "/marketdata/{index}/movers", ObjectList}
)

// Endpoints lists every endpoint the client knows.
func Endpoints() []Endpoint {
	return []Endpoint{
		Token, Quotes, PriceHistory, GetInstrument, SearchInstruments,
		GetAccount, GetLinkedAccounts, GetMovers,
	}
}

type segment struct {
	literal string
	slot    bool
}

type compiled struct {
	endpoint Endpoint
	segments []segment
	pattern  *regexp.Regexp
}

func (c *compiled) literals() int {
	n := 0
	for _, s := range c.segments {
		if !s.slot {
			n++
		}
	}
	return n
}

func (c *compiled) slots() int {
	return len(c.segments) - c.literals()
}

// Catalog resolves endpoint URLs under a root and classifies concrete URLs.
type Catalog struct {
	root      string
	endpoints []*compiled // most specific first
	byName    map[string]*compiled
}

// NewCatalog compiles endpoints under root. It rejects duplicate names,
// partial-segment placeholders and endpoint pairs that could match the same
// URL, unless one of the pair is strictly more specific.
func NewCatalog(root string, endpoints ...Endpoint) (*Catalog, error) {
	root = strings.TrimRight(root, "/")
	if _, err := url.Parse(root); err != nil {
		return nil, fmt.Errorf("parsing catalog root: %w", err)
	}

	c := &Catalog{root: root, byName: make(map[string]*compiled, len(endpoints))}
	for _, e := range endpoints {
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate endpoint %s", e.Name)
		}
		ce, err := compile(root, e)
		if err != nil {
			return nil, err
		}
		c.byName[e.Name] = ce
		c.endpoints = append(c.endpoints, ce)
	}

	for i := 0; i < len(c.endpoints); i++ {
		for j := i + 1; j < len(c.endpoints); j++ {
			a, b := c.endpoints[i], c.endpoints[j]
			if overlaps(a, b) && !moreSpecific(a, b) && !moreSpecific(b, a) {
				return nil, fmt.Errorf("endpoints %s and %s match the same URLs", a.endpoint.Name, b.endpoint.Name)
			}
		}
	}

	sort.SliceStable(c.endpoints, func(i, j int) bool {
		a, b := c.endpoints[i], c.endpoints[j]
		if a.literals() != b.literals() {
			return a.literals() > b.literals()
		}
		return len(a.endpoint.Path) > len(b.endpoint.Path)
	})
	return c, nil
}

// MustCatalog is NewCatalog for static endpoint sets.
func MustCatalog(root string, endpoints ...Endpoint) *Catalog {
	c, err := NewCatalog(root, endpoints...)
	if err != nil {
		panic(err)
	}
	return c
}

func compile(root string, e Endpoint) (*compiled, error) {
	path := strings.Trim(e.Path, "/")
	ce := &compiled{endpoint: e}

	var sb strings.Builder
	sb.WriteString("^")
	sb.WriteString(regexp.QuoteMeta(root))
	if path != "" {
		for _, part := range strings.Split(path, "/") {
			sb.WriteString("/")
			if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2 {
				ce.segments = append(ce.segments, segment{slot: true})
				sb.WriteString("[^/]+")
				continue
			}
			if part == "" || strings.ContainsAny(part, "{}") {
				return nil, fmt.Errorf("endpoint %s: bad path segment %q", e.Name, part)
			}
			ce.segments = append(ce.segments, segment{literal: part})
			sb.WriteString(regexp.QuoteMeta(part))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", e.Name, err)
	}
	ce.pattern = re
	return ce, nil
}

// overlaps reports whether some URL matches both a and b.
func overlaps(a, b *compiled) bool {
	if len(a.segments) != len(b.segments) {
		return false
	}
	for i := range a.segments {
		sa, sb := a.segments[i], b.segments[i]
		if !sa.slot && !sb.slot && sa.literal != sb.literal {
			return false
		}
	}
	return true
}

// moreSpecific reports whether a has a literal wherever the two differ.
func moreSpecific(a, b *compiled) bool {
	differs := false
	for i := range a.segments {
		sa, sb := a.segments[i], b.segments[i]
		if sa.slot == sb.slot {
			continue
		}
		if sa.slot {
			return false
		}
		differs = true
	}
	return differs
}

// Root is the catalog's URL prefix.
func (c *Catalog) Root() string { return c.root }

// URL resolves e with args substituted, in order, for its placeholders.
func (c *Catalog) URL(e Endpoint, args ...string) (string, error) {
	ce, err := c.lookup(e)
	if err != nil {
		return "", err
	}
	if len(args) != ce.slots() {
		return "", fmt.Errorf("endpoint %s takes %d path arguments, got %d", e.Name, ce.slots(), len(args))
	}

	var sb strings.Builder
	sb.WriteString(c.root)
	next := 0
	for _, s := range ce.segments {
		sb.WriteString("/")
		if !s.slot {
			sb.WriteString(s.literal)
			continue
		}
		if args[next] == "" {
			return "", fmt.Errorf("endpoint %s: empty path argument %d", e.Name, next)
		}
		sb.WriteString(url.PathEscape(args[next]))
		next++
	}
	return sb.String(), nil
}

// Match reports whether rawURL belongs to e. Query string, fragment and a
// trailing slash are ignored. A path-only URL is taken relative to the root.
func (c *Catalog) Match(e Endpoint, rawURL string) bool {
	ce, err := c.lookup(e)
	if err != nil {
		return false
	}
	target, ok := c.normalize(rawURL)
	return ok && ce.pattern.MatchString(target)
}

// Classify returns the endpoint rawURL belongs to, trying more specific
// templates first. Like Match it accepts absolute or path-only URLs.
func (c *Catalog) Classify(rawURL string) (Endpoint, error) {
	if target, ok := c.normalize(rawURL); ok {
		for _, ce := range c.endpoints {
			if ce.pattern.MatchString(target) {
				return ce.endpoint, nil
			}
		}
	}
	return Endpoint{}, &UnrecognizedResponseError{URL: rawURL}
}

func (c *Catalog) lookup(e Endpoint) (*compiled, error) {
	ce, ok := c.byName[e.Name]
	if !ok {
		return nil, fmt.Errorf("endpoint %s is not in the catalog", e.Name)
	}
	return ce, nil
}

func (c *Catalog) normalize(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if u.Scheme != "" || u.Host != "" {
		return u.Scheme + "://" + u.Host + path, true
	}

	root, err := url.Parse(c.root)
	if err != nil {
		return "", false
	}
	rootPath := strings.TrimRight(root.EscapedPath(), "/")
	if path != rootPath && !strings.HasPrefix(path, rootPath+"/") {
		path = rootPath + path
	}
	if root.Scheme == "" && root.Host == "" {
		return path, true
	}
	return root.Scheme + "://" + root.Host + path, true
}
