package screener

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohamedkhairy/stock-screener/internal/fmp"
	"github.com/mohamedkhairy/stock-screener/internal/models"
)

var percentPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// perFields lists the screener fields that may carry a P/E ratio
var perFields = []string{"pe", "priceEarningsRatio", "peRatio"}

// baseQuery builds the screener query string for plan.Base
func baseQuery(base []models.BaseFilter, limit int) url.Values {
	params := url.Values{}
	for _, b := range base {
		params.Set(b.Param, formatParam(b.Value))
	}
	params.Set("limit", strconv.Itoa(limit))
	return params
}

func formatParam(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case bool:
		return strconv.FormatBool(n)
	default:
		return ""
	}
}

// mapRow converts a screener record into a row. ok is false for records
// without a symbol.
func mapRow(raw fmp.Record) (models.ScreenerRow, bool) {
	symbol := strings.TrimSpace(raw.String("symbol"))
	if symbol == "" {
		return models.ScreenerRow{}, false
	}

	row := models.ScreenerRow{
		Symbol:      symbol,
		CompanyName: raw.String("companyName"),
		Sector:      raw.String("sector"),
		Industry:    raw.String("industry"),
		Exchange:    firstString(raw, "exchangeShortName", "exchange"),
		Price:       optional(raw.Float("price")),
		Volume:      optional(raw.Float("volume")),
		MarketCap:   optional(raw.Float("marketCap")),
		PER:         optional(raw.Float(perFields...)),
		Raw:         raw,
	}
	row.DailyChangePct = dailyChange(raw["changesPercentage"])
	return row, true
}

// dailyChange accepts a number or a string such as "1.23%" or "(-0.5%)"
func dailyChange(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return models.Float(n)
	case string:
		m := percentPattern.FindString(n)
		if m == "" {
			return nil
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		return models.Float(f)
	}
	return nil
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return models.Float(v)
}

func firstString(raw fmp.Record, keys ...string) string {
	for _, k := range keys {
		if s := raw.String(k); s != "" {
			return s
		}
	}
	return ""
}
