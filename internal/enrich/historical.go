package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/fmp"
	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// HistoricalBufferDays widens the fetch window so a bar on or before the
// cutoff exists across weekends and market holidays
const HistoricalBufferDays = 10

// HistoricalService fetches daily series for N-day change filters
type HistoricalService struct {
	client HistoricalFetcher
}

// NewHistoricalService creates a HistoricalService
func NewHistoricalService(client HistoricalFetcher) *HistoricalService {
	return &HistoricalService{client: client}
}

// Series returns bars covering at least maxDays calendar days before now,
// newest first
func (s *HistoricalService) Series(ctx context.Context, apiKey, symbol string, maxDays int, now time.Time) ([]fmp.Bar, error) {
	if maxDays <= 0 {
		return nil, fmt.Errorf("invalid lookback of %d days", maxDays)
	}
	from := now.AddDate(0, 0, -(maxDays + HistoricalBufferDays))
	bars, err := s.client.HistoricalPrices(ctx, apiKey, symbol, from, now)
	if err != nil {
		return nil, fmt.Errorf("historical series for %s: %w", symbol, err)
	}
	return bars, nil
}

// Change is a percent change between the latest bar and a past bar
type Change struct {
	Pct           float64
	Latest        fmp.Bar
	Past          fmp.Bar
	EffectiveDays int
	// Shortened is set when no bar exists on or before the cutoff and the
	// oldest bar was used instead
	Shortened bool
}

// Cutoff returns the date days calendar days before now
func Cutoff(now time.Time, days int) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ComputeChange compares series[0] with the most recent bar dated on or
// before cutoff. series must be newest first. ok is false when the series is
// empty, either value is absent, or the past value is not positive.
func ComputeChange(series []fmp.Bar, metric models.HistoricalMetric, cutoff time.Time) (Change, bool) {
	if len(series) == 0 {
		return Change{}, false
	}

	latest := series[0]
	pastIdx := -1
	for i, bar := range series {
		d, err := bar.Time()
		if err != nil {
			continue
		}
		if !d.After(cutoff) {
			pastIdx = i
			break
		}
	}

	c := Change{Latest: latest}
	if pastIdx < 0 {
		pastIdx = len(series) - 1
		c.Shortened = true
	}
	c.Past = series[pastIdx]

	var nowN, thenN fmp.Number
	switch metric {
	case models.MetricPriceChangePctNDays:
		nowN, thenN = latest.Close, c.Past.Close
	case models.MetricVolumeChangePctNDays:
		nowN, thenN = latest.Volume, c.Past.Volume
	default:
		return Change{}, false
	}
	now, okNow := nowN.Get()
	then, okThen := thenN.Get()
	if !okNow || !okThen || then <= 0 {
		return Change{}, false
	}

	c.Pct = (now - then) / then * 100
	c.EffectiveDays = daysBetween(latest, c.Past)
	return c, true
}

func daysBetween(latest, past fmp.Bar) int {
	a, err1 := latest.Time()
	b, err2 := past.Time()
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(a.Sub(b).Hours() / 24)
}
