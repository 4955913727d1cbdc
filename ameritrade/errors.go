package ameritrade

import (
	"errors"
	"fmt"

	httpClient "github.com/Alias1177/ameritrade/internal/platform/http"
)

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrUnrecognizedResponse = errors.New("unrecognized response")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrAmbiguousInstrument  = errors.New("ambiguous instrument")
	ErrInstrumentNotFound   = errors.New("instrument not found")
	ErrNotAuthenticated     = errors.New("client is not authenticated")

	ErrTransport = httpClient.ErrTransport
	ErrRequest   = httpClient.ErrRequest
)

// TransportError is a network, timeout or cancellation failure.
type TransportError = httpClient.TransportError

// RequestError is a non-2xx response from the server.
type RequestError = httpClient.RequestError

// InvalidParameterError is returned before any network call when an argument
// fails validation.
type InvalidParameterError struct {
	Name    string
	Value   any
	Allowed any
	// Context qualifies the rule, e.g. "for periodType year".
	Context string
}

func (e *InvalidParameterError) Error() string {
	msg := fmt.Sprintf("invalid %s %v", e.Name, e.Value)
	if e.Context != "" {
		msg += " " + e.Context
	}
	if e.Allowed != nil {
		msg += fmt.Sprintf(": must be one of %v", e.Allowed)
	}
	return msg
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

func invalid(name string, value, allowed any, context string) error {
	return &InvalidParameterError{Name: name, Value: value, Allowed: allowed, Context: context}
}

// UnrecognizedResponseError means a URL did not match any catalog endpoint.
type UnrecognizedResponseError struct {
	URL string
}

func (e *UnrecognizedResponseError) Error() string {
	return fmt.Sprintf("no endpoint matches %s", e.URL)
}

func (e *UnrecognizedResponseError) Is(target error) bool { return target == ErrUnrecognizedResponse }
