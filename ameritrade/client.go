package ameritrade

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	httpClient "github.com/Alias1177/ameritrade/internal/platform/http"
	"github.com/Alias1177/ameritrade/models"
)

// Options configures a Client.
type Options struct {
	Credentials Credentials
	// Root overrides DefaultRoot.
	Root           string
	Timeout        time.Duration
	RequestsPerSec int
	// HTTPClient replaces the default client. Credentials.CertPath is ignored
	// when it is set.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client issues typed API calls and keeps the OAuth session.
type Client struct {
	catalog    *Catalog
	builder    *Builder
	dispatcher *Dispatcher
	transport  *httpClient.Client
	session    *session
	logger     zerolog.Logger
}

var _ models.Fetcher = (*Client)(nil)

// NewClient creates a client from opts.
func NewClient(opts Options) (*Client, error) {
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}
	catalog, err := NewCatalog(root, Endpoints()...)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	hc := opts.HTTPClient
	if hc == nil && opts.Credentials.CertPath != "" {
		hc, err = certClient(opts.Credentials.CertPath)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		catalog: catalog,
		session: newSession(opts.Credentials),
		logger:  logger.With().Str("component", "ameritrade_client").Logger(),
		transport: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:        opts.Timeout,
			RequestsPerSec: opts.RequestsPerSec,
			HTTPClient:     hc,
			Logger:         &logger,
		}),
	}
	c.builder = NewBuilder(catalog, c.session.snapshot)
	c.dispatcher = NewDispatcher(catalog, c, c.storeToken, logger)
	c.session.refresh = func(ctx context.Context) error {
		_, err := c.GrantRefreshToken(ctx)
		return err
	}
	return c, nil
}

// certClient trusts the PEM certificates in path in addition to the system pool.
func certClient(path string) (*http.Client, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate %s: %w", path, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: transport}, nil
}

func (c *Client) storeToken(t *models.Token) {
	c.session.setTokens(t.AccessToken(), t.RefreshToken())
	c.logger.Info().
		Int64("expires_in", t.ExpiresIn()).
		Bool("refresh_rotated", t.RefreshToken() != "").
		Msg("Stored new access token")
}

// Catalog returns the endpoint catalog the client resolves URLs with.
func (c *Client) Catalog() *Catalog { return c.catalog }

// Builder returns the request builder, for callers that send requests with Do.
func (c *Client) Builder() *Builder { return c.builder }

// Credentials returns a snapshot including any rotated tokens.
func (c *Client) Credentials() Credentials { return c.session.snapshot() }

// AuthorizationURL is the page a user opens to obtain an authorization code.
func (c *Client) AuthorizationURL() string { return c.builder.AuthorizationURL() }

// Do sends req and dispatches the response body by its URL.
func (c *Client) Do(ctx context.Context, req *Request) ([]models.ResultItem, error) {
	resp, err := c.transport.Do(ctx, req.transport(), c.session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Endpoint.Name, err)
	}
	c.logger.Debug().
		Str("endpoint", req.Endpoint.Name).
		Int("attempts", resp.Attempts).
		Msg("Response received")
	return c.dispatcher.Parse(req.URL, resp.Body)
}

// run builds and sends a request, asserting every result to T.
func run[T models.ResultItem](ctx context.Context, c *Client, build func() (*Request, error)) ([]T, error) {
	req, err := build()
	if err != nil {
		return nil, err
	}
	items, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		t, ok := item.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s returned %s", ErrMalformedResponse, req.Endpoint.Name, item.Kind())
		}
		out = append(out, t)
	}
	return out, nil
}

func first[T any](items []T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrMalformedResponse
	}
	return items[0], nil
}

// Quotes fetches quotes in the order the server returns them.
func (c *Client) Quotes(ctx context.Context, symbols ...string) ([]*models.Quote, error) {
	return run[*models.Quote](ctx, c, func() (*Request, error) { return c.builder.Quotes(symbols...) })
}

// PriceHistory fetches candles for symbol.
func (c *Client) PriceHistory(ctx context.Context, symbol string, p models.PriceHistoryParams) (*models.PriceHistory, error) {
	return first[*models.PriceHistory](run[*models.PriceHistory](ctx, c, func() (*Request, error) { return c.builder.PriceHistory(symbol, p) }))
}

// Instrument fetches one instrument by CUSIP.
func (c *Client) Instrument(ctx context.Context, cusip string) (*models.Instrument, error) {
	return first[*models.Instrument](run[*models.Instrument](ctx, c, func() (*Request, error) { return c.builder.Instrument(cusip) }))
}

// SearchInstruments searches instruments with the given projection.
func (c *Client) SearchInstruments(ctx context.Context, symbol, projection string) ([]*models.Instrument, error) {
	return run[*models.Instrument](ctx, c, func() (*Request, error) { return c.builder.SearchInstruments(symbol, projection) })
}

// Account fetches accountID, or the configured account when it is empty.
func (c *Client) Account(ctx context.Context, accountID string, fields ...string) (*models.Account, error) {
	return first[*models.Account](run[*models.Account](ctx, c, func() (*Request, error) { return c.builder.Account(accountID, fields...) }))
}

func (c *Client) LinkedAccounts(ctx context.Context, fields ...string) ([]*models.Account, error) {
	return run[*models.Account](ctx, c, func() (*Request, error) { return c.builder.LinkedAccounts(fields...) })
}

func (c *Client) Movers(ctx context.Context, index, direction, change string) ([]*models.Mover, error) {
	return run[*models.Mover](ctx, c, func() (*Request, error) { return c.builder.Movers(index, direction, change) })
}

// GrantRefreshToken exchanges the refresh token for a new access token and
// stores it in the session.
func (c *Client) GrantRefreshToken(ctx context.Context) (*models.Token, error) {
	return first[*models.Token](run[*models.Token](ctx, c, c.builder.GrantRefreshToken))
}

// GrantOfflineToken exchanges an authorization code for an access token and a
// long-lived refresh token, both stored in the session.
func (c *Client) GrantOfflineToken(ctx context.Context, code string) (*models.Token, error) {
	return first[*models.Token](run[*models.Token](ctx, c, func() (*Request, error) { return c.builder.GrantOfflineToken(code) }))
}
