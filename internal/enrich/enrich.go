// Package enrich fetches per-symbol data that the screener endpoint does not
// return: historical series, technical indicators and P/E ratios.
package enrich

import (
	"context"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/fmp"
)

const (
	// DefaultTechnicalTTL is how long an indicator reading stays cached
	DefaultTechnicalTTL = 90 * time.Second

	// DefaultFundamentalTTL is how long a P/E reading stays cached
	DefaultFundamentalTTL = 300 * time.Second
)

// HistoricalFetcher returns daily bars, newest first
type HistoricalFetcher interface {
	HistoricalPrices(ctx context.Context, apiKey, symbol string, from, to time.Time) ([]fmp.Bar, error)
}

// IndicatorFetcher returns published technical indicator values
type IndicatorFetcher interface {
	TechnicalIndicator(ctx context.Context, apiKey, timeframe, symbol, indicatorType string, period int) ([]fmp.IndicatorPoint, error)
}

// RatioFetcher exposes the three endpoints that may carry a P/E ratio
type RatioFetcher interface {
	KeyMetricsTTM(ctx context.Context, apiKey, symbol string) ([]fmp.Record, error)
	RatiosTTM(ctx context.Context, apiKey, symbol string) ([]fmp.Record, error)
	Profile(ctx context.Context, apiKey, symbol string) ([]fmp.Record, error)
}

// Reading is a cached enrichment value. Value is nil when the provider
// answered without a usable number.
type Reading struct {
	Value *float64 `json:"value,omitempty"`
	AsOf  string   `json:"asOf,omitempty"`
}

// Has reports whether the reading carries a number
func (r Reading) Has() bool {
	return r.Value != nil
}
