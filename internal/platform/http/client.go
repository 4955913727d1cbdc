package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"

	tracerName = "github.com/Alias1177/ameritrade/internal/platform/http"
)

// Authorizer attaches credentials to outgoing requests and renews them after
// the server rejects them.
type Authorizer interface {
	Authorize(h http.Header)
	Refresh(ctx context.Context) error
}

// Request is a transport-level request. Query is appended to URL for every
// method; Form becomes the body when set.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Form   url.Values
	Header http.Header
	// Refreshable requests are resent once after a 401 and a token refresh.
	Refreshable bool
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int

	sent http.Header
}

// Client is a wrapper for HTTP client with rate limiting
type Client struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// ClientOptions holds options for creating a new Client
type ClientOptions struct {
	Timeout        time.Duration
	RequestsPerSec int
	// HTTPClient replaces the default client. When it has no timeout, a copy
	// with Timeout set is used instead.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(opts ClientOptions) *Client {
	// Set default values if not provided
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 2
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		// Copy so the caller's client keeps its own settings.
		c := *hc
		c.Timeout = opts.Timeout
		hc = &c
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		HTTPClient: hc,
		Limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		logger:     logger.With().Str("component", "http_client").Logger(),
		tracer:     otel.Tracer(tracerName),
	}
}

var errUnauthorized = errors.New("unauthorized")

// Do sends req. A 401 on the first attempt of a refreshable request triggers
// auth.Refresh and exactly one resend; every other outcome is final.
func (c *Client) Do(ctx context.Context, req *Request, auth Authorizer) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "http "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL),
		),
	)
	defer span.End()

	logger := c.logger.With().
		Str("request_id", uuid.NewString()).
		Str("method", req.Method).
		Str("url", req.URL).
		Logger()

	var (
		resp     *Response
		attempts int
	)
	operation := func() error {
		attempts++
		r, err := c.send(ctx, req, auth, logger)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r.StatusCode == http.StatusUnauthorized && attempts == 1 && req.Refreshable && auth != nil {
			logger.Info().Msg("Refreshing token")
			if err := auth.Refresh(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("refreshing token after 401: %w", err))
			}
			logger.Info().Msg("Sending request again after refreshing token")
			return errUnauthorized
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			return backoff.Permanent(newRequestError(req, r))
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	err := backoff.Retry(operation, policy)
	span.SetAttributes(attribute.Int("http.attempts", attempts))
	if err != nil {
		var te *TransportError
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.As(err, &te) && errors.Is(err, ctxErr) {
			err = &TransportError{Method: req.Method, URL: req.URL, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Int("attempts", attempts).Msg("Request failed")
		return nil, err
	}

	resp.Attempts = attempts
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	logger.Debug().Int("status", resp.StatusCode).Int("bytes", len(resp.Body)).Msg("Request succeeded")
	return resp, nil
}

// send performs one attempt and reads the whole body.
func (c *Client) send(ctx context.Context, req *Request, auth Authorizer, logger zerolog.Logger) (*Response, error) {
	// Wait for rate limiter
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("creating request: %w", err)}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if auth != nil {
		auth.Authorize(httpReq.Header)
	}

	logger.Debug().Str("target", target).Msg("Sending request")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("reading response body: %w", err)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		sent:       httpReq.Header,
	}, nil
}

var (
	ErrTransport = errors.New("transport error")
	ErrRequest   = errors.New("request error")
)

// TransportError is a network, timeout or cancellation failure.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Timeout reports whether the failure was a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// RequestError represents an error due to a non-2xx HTTP status code
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	// Params and Header are the outgoing values with secrets redacted.
	Params url.Values
	Header http.Header
	// Body is the decoded JSON error body, or the raw bytes as a string when
	// the response was not JSON.
	Body any
	Raw  []byte
}

const redacted = "REDACTED"

var secretParams = []string{"refresh_token", "code", "access_token", "client_secret"}

func newRequestError(req *Request, resp *Response) *RequestError {
	params := url.Values{}
	for k, vs := range req.Query {
		params[k] = append([]string(nil), vs...)
	}
	for k, vs := range req.Form {
		params[k] = append([]string(nil), vs...)
	}
	for _, k := range secretParams {
		if params.Has(k) {
			params.Set(k, redacted)
		}
	}

	header := resp.sent.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Authorization") != "" {
		header.Set("Authorization", "Bearer "+redacted)
	}

	e := &RequestError{
		Method:     req.Method,
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Params:     params,
		Header:     header,
		Raw:        resp.Body,
		Body:       string(resp.Body),
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == ContentTypeJSON && len(bytes.TrimSpace(resp.Body)) > 0 {
		var decoded any
		if err := json.Unmarshal(resp.Body, &decoded); err == nil {
			e.Body = decoded
		}
	}
	return e
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: server responded with %d %s: %v",
		e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *RequestError) Is(target error) bool { return target == ErrRequest }
