package indicator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sdcoffey/techan"
)

var (
	ErrInvalidPeriod    = errors.New("invalid indicator period")
	ErrInsufficientData = errors.New("insufficient data")
)

// DailyPeriod is the candle width used for daily closes
const DailyPeriod = 24 * time.Hour

// RSI computes the relative strength index of the newest point. It needs at
// least period+1 points. A series with no losses yields 100.
func RSI(points []Point, period int) (float64, error) {
	if period < 2 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}

	series := NewTimeSeries(points, DailyPeriod)
	rsi := techan.NewRelativeStrengthIndexIndicator(techan.NewClosePriceIndicator(series), period)

	if series.LastIndex() >= period && !hasLoss(series) {
		return 100, nil
	}

	v, err := lastValue(series, rsi, period+1)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || v > 100 {
		return 100, nil
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}

func hasLoss(series *techan.TimeSeries) bool {
	for i := 1; i < len(series.Candles); i++ {
		if series.Candles[i].ClosePrice.LT(series.Candles[i-1].ClosePrice) {
			return true
		}
	}
	return false
}
