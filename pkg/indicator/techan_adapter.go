package indicator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

// Point is one closing price of a series
type Point struct {
	Time  time.Time
	Close float64
}

// NewTimeSeries converts points into a techan series ordered oldest first.
// Points may arrive in any order; duplicate timestamps keep the first seen.
func NewTimeSeries(points []Point, period time.Duration) *techan.TimeSeries {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	series := techan.NewTimeSeries()
	for _, p := range sorted {
		candle := techan.NewCandle(techan.NewTimePeriod(p.Time, period))
		candle.OpenPrice = big.NewDecimal(p.Close)
		candle.MaxPrice = big.NewDecimal(p.Close)
		candle.MinPrice = big.NewDecimal(p.Close)
		candle.ClosePrice = big.NewDecimal(p.Close)
		// AddCandle rejects candles that do not advance the series
		series.AddCandle(candle)
	}
	return series
}

// lastValue evaluates an indicator on the newest candle
func lastValue(series *techan.TimeSeries, ind techan.Indicator, need int) (float64, error) {
	last := series.LastIndex()
	if last+1 < need {
		return 0, fmt.Errorf("%w: have %d points, need %d", ErrInsufficientData, last+1, need)
	}
	v := ind.Calculate(last).Float()
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: indicator returned NaN", ErrInsufficientData)
	}
	return v, nil
}
