package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/fmp"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/pkg/cache"
	"github.com/mohamedkhairy/stock-screener/pkg/indicator"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

// RSISource selects where RSI readings come from
type RSISource string

const (
	// RSISourceAPI reads the provider's published indicator
	RSISourceAPI RSISource = "api"
	// RSISourceComputed computes daily RSI from closing prices
	RSISourceComputed RSISource = "computed"
)

// computedLookbackDays is the calendar window fetched for a computed RSI
const computedLookbackDays = 180

// TechnicalService returns cached technical indicator readings
type TechnicalService struct {
	client  IndicatorFetcher
	history HistoricalFetcher
	cache   cache.Cache[Reading]
	ttl     time.Duration
	missTTL time.Duration
	source  RSISource
	now     func() time.Time
}

// TechnicalOption configures a TechnicalService
type TechnicalOption func(*TechnicalService)

// WithTechnicalTTL sets how long readings are cached
func WithTechnicalTTL(ttl time.Duration) TechnicalOption {
	return func(s *TechnicalService) {
		s.ttl = ttl
	}
}

// WithTechnicalMissTTL caches readings without a value for ttl. Zero, the
// default, leaves misses uncached.
func WithTechnicalMissTTL(ttl time.Duration) TechnicalOption {
	return func(s *TechnicalService) {
		s.missTTL = ttl
	}
}

// WithComputedRSI computes daily RSI locally from the history fetcher
func WithComputedRSI(history HistoricalFetcher) TechnicalOption {
	return func(s *TechnicalService) {
		s.history = history
		s.source = RSISourceComputed
	}
}

// WithTechnicalClock replaces the time source used by computed readings
func WithTechnicalClock(now func() time.Time) TechnicalOption {
	return func(s *TechnicalService) {
		s.now = now
	}
}

// NewTechnicalService creates a TechnicalService
func NewTechnicalService(client IndicatorFetcher, c cache.Cache[Reading], opts ...TechnicalOption) *TechnicalService {
	s := &TechnicalService{
		client: client,
		cache:  c,
		ttl:    DefaultTechnicalTTL,
		source: RSISourceAPI,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RSI returns the latest RSI reading for symbol. A cached reading is
// returned without contacting the provider.
func (s *TechnicalService) RSI(ctx context.Context, apiKey, symbol string, timeframe models.Timeframe, period int) (Reading, error) {
	key := cache.IndicatorKey(symbol, string(timeframe), period)
	if r, ok := s.cache.Get(ctx, key); ok {
		logger.CacheLookups.WithLabelValues("technical", "hit").Inc()
		return r, nil
	}
	logger.CacheLookups.WithLabelValues("technical", "miss").Inc()

	var (
		r   Reading
		err error
	)
	if s.source == RSISourceComputed && s.history != nil && timeframe == models.TimeframeDaily {
		r, err = s.computeRSI(ctx, apiKey, symbol, period)
	} else {
		r, err = s.fetchRSI(ctx, apiKey, symbol, timeframe, period)
	}
	if err != nil {
		return Reading{}, err
	}

	switch {
	case r.Has():
		s.cache.Set(ctx, key, r, s.ttl)
	case s.missTTL > 0:
		s.cache.Set(ctx, key, r, s.missTTL)
	}
	return r, nil
}

func (s *TechnicalService) fetchRSI(ctx context.Context, apiKey, symbol string, timeframe models.Timeframe, period int) (Reading, error) {
	points, err := s.client.TechnicalIndicator(ctx, apiKey, string(timeframe), cache.SymbolKey(symbol), "rsi", period)
	if err != nil {
		return Reading{}, fmt.Errorf("rsi for %s: %w", symbol, err)
	}
	p, ok := LatestPoint(points)
	if !ok {
		return Reading{}, nil
	}
	return Reading{Value: p.Value, AsOf: p.Date}, nil
}

func (s *TechnicalService) computeRSI(ctx context.Context, apiKey, symbol string, period int) (Reading, error) {
	now := s.now()
	bars, err := s.history.HistoricalPrices(ctx, apiKey, cache.SymbolKey(symbol), now.AddDate(0, 0, -computedLookbackDays), now)
	if err != nil {
		return Reading{}, fmt.Errorf("rsi history for %s: %w", symbol, err)
	}

	points := make([]indicator.Point, 0, len(bars))
	for _, b := range bars {
		t, err := b.Time()
		if err != nil {
			continue
		}
		px, ok := b.Close.Get()
		if !ok {
			// a hole in the closes would skew every later average
			return Reading{}, nil
		}
		points = append(points, indicator.Point{Time: t, Close: px})
	}

	v, err := indicator.RSI(points, period)
	if err != nil {
		// too little history is an absent value, not a failed fetch
		return Reading{}, nil
	}
	r := Reading{Value: &v}
	if len(bars) > 0 {
		r.AsOf = bars[0].Date
	}
	return r, nil
}

// LatestPoint selects the most recently dated point, with or without a
// value. When no date parses it prefers the last point carrying a value,
// then the first point.
func LatestPoint(points []fmp.IndicatorPoint) (fmp.IndicatorPoint, bool) {
	if len(points) == 0 {
		return fmp.IndicatorPoint{}, false
	}

	best := -1
	var bestTime time.Time
	for i, p := range points {
		t, err := p.Time()
		if err != nil {
			continue
		}
		if best < 0 || t.After(bestTime) {
			best, bestTime = i, t
		}
	}
	if best >= 0 {
		return points[best], true
	}

	if last := points[len(points)-1]; last.Value != nil {
		return last, true
	}
	return points[0], true
}
