package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/fmp"
	"github.com/mohamedkhairy/stock-screener/pkg/cache"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

// perSource is one step of the P/E cascade
type perSource struct {
	name   string
	fetch  func(ctx context.Context, apiKey, symbol string) ([]fmp.Record, error)
	fields []string
}

// FundamentalService resolves company P/E ratios
type FundamentalService struct {
	cascade []perSource
	cache   cache.Cache[Reading]
	ttl     time.Duration
	missTTL time.Duration
}

// FundamentalOption configures a FundamentalService
type FundamentalOption func(*FundamentalService)

// WithFundamentalTTL sets how long P/E values are cached
func WithFundamentalTTL(ttl time.Duration) FundamentalOption {
	return func(s *FundamentalService) {
		s.ttl = ttl
	}
}

// WithFundamentalMissTTL caches "no P/E found" for ttl. Zero, the default,
// leaves misses uncached.
func WithFundamentalMissTTL(ttl time.Duration) FundamentalOption {
	return func(s *FundamentalService) {
		s.missTTL = ttl
	}
}

// NewFundamentalService creates a FundamentalService that tries key
// metrics, then ratios, then the company profile
func NewFundamentalService(client RatioFetcher, c cache.Cache[Reading], opts ...FundamentalOption) *FundamentalService {
	s := &FundamentalService{
		cascade: []perSource{
			{name: "key-metrics-ttm", fetch: client.KeyMetricsTTM, fields: []string{"peRatioTTM", "peRatio"}},
			{name: "ratios-ttm", fetch: client.RatiosTTM, fields: []string{"priceEarningsRatioTTM", "priceEarningsRatio"}},
			{name: "profile", fetch: client.Profile, fields: []string{"pe", "priceEarningsRatio", "peRatio"}},
		},
		cache: c,
		ttl:   DefaultFundamentalTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PER returns the P/E ratio of symbol, or nil when no step of the cascade
// yields a number. The error joins the failures of every step and is only
// set when no value was found.
func (s *FundamentalService) PER(ctx context.Context, apiKey, symbol string) (*float64, error) {
	key := cache.SymbolKey(symbol)
	if r, ok := s.cache.Get(ctx, key); ok {
		logger.CacheLookups.WithLabelValues("fundamental", "hit").Inc()
		return r.Value, nil
	}
	logger.CacheLookups.WithLabelValues("fundamental", "miss").Inc()

	var errs []error
	for _, src := range s.cascade {
		records, err := src.fetch(ctx, apiKey, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(records) == 0 {
			continue
		}
		if v, ok := records[0].Float(src.fields...); ok {
			s.cache.Set(ctx, key, Reading{Value: &v}, s.ttl)
			return &v, nil
		}
	}

	if s.missTTL > 0 && len(errs) == 0 {
		s.cache.Set(ctx, key, Reading{}, s.missTTL)
	}
	return nil, errors.Join(errs...)
}
