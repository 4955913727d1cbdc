package models

import (
	"context"
	"time"
)

// Fetcher is the subset of the API client that result items use for their
// lazy follow-up calls.
type Fetcher interface {
	Quotes(ctx context.Context, symbols ...string) ([]*Quote, error)
	PriceHistory(ctx context.Context, symbol string, params PriceHistoryParams) (*PriceHistory, error)
}

// ResultItem is implemented by every typed result the dispatcher produces.
type ResultItem interface {
	// Kind names the result type, e.g. "Quote".
	Kind() string
	// Get returns a decoded JSON field by its original or safe key.
	Get(field string) (any, bool)
	// Raw returns the decoded JSON object with its original keys.
	Raw() map[string]any
	// Describe renders the item for humans.
	Describe() string
}

// PriceHistoryParams bounds a price history query. Zero values mean "not
// given"; NeedExtendedHoursData nil means the default (true).
type PriceHistoryParams struct {
	PeriodType            string
	Period                int
	FrequencyType         string
	Frequency             int
	StartDate             *time.Time
	EndDate               *time.Time
	NeedExtendedHoursData *bool
}
