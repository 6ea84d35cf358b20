package models

import (
	"fmt"
	"strings"
)

// CompareOp is a threshold comparison
type CompareOp string

const (
	OpGTE CompareOp = "gte"
	OpLTE CompareOp = "lte"
)

// ParseCompareOp accepts gte/lte and the >=, <= spellings
func ParseCompareOp(s string) (CompareOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gte", ">=":
		return OpGTE, nil
	case "lte", "<=":
		return OpLTE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
}

// Compare applies the operator as observed <op> threshold
func (op CompareOp) Compare(observed, threshold float64) bool {
	switch op {
	case OpGTE:
		return observed >= threshold
	case OpLTE:
		return observed <= threshold
	default:
		return false
	}
}

// Symbol returns a display form of the operator
func (op CompareOp) Symbol() string {
	if op == OpLTE {
		return "<="
	}
	return ">="
}

// HistoricalMetric selects the bar field used for an N-day change
type HistoricalMetric string

const (
	MetricPriceChangePctNDays  HistoricalMetric = "priceChangePctNDays"
	MetricVolumeChangePctNDays HistoricalMetric = "volumeChangePctNDays"
)

// TechnicalKind identifies a technical indicator filter
type TechnicalKind string

const (
	TechnicalRSI TechnicalKind = "rsi"
)

// Timeframe is an indicator timeframe understood by the upstream provider
type Timeframe string

const (
	TimeframeDaily Timeframe = "daily"
	Timeframe1Min  Timeframe = "1min"
	Timeframe5Min  Timeframe = "5min"
	Timeframe15Min Timeframe = "15min"
	Timeframe30Min Timeframe = "30min"
	Timeframe1Hour Timeframe = "1hour"
	Timeframe4Hour Timeframe = "4hour"
)

var validTimeframes = map[Timeframe]bool{
	TimeframeDaily: true,
	Timeframe1Min:  true,
	Timeframe5Min:  true,
	Timeframe15Min: true,
	Timeframe30Min: true,
	Timeframe1Hour: true,
	Timeframe4Hour: true,
}

// Valid reports whether the timeframe is supported
func (tf Timeframe) Valid() bool {
	return validTimeframes[tf]
}

// PostKind identifies a filter evaluated after enrichment
type PostKind string

const (
	PostPER PostKind = "per"
)

// Screener query parameter names
const (
	ParamExchange           = "exchange"
	ParamSector             = "sector"
	ParamMarketCapMoreThan  = "marketCapMoreThan"
	ParamMarketCapLowerThan = "marketCapLowerThan"
)

// DefaultExchange is injected when a rule names no exchange
const DefaultExchange = "NASDAQ"

// BaseFilter maps to one upstream screener query parameter
type BaseFilter struct {
	Param string      `json:"param"`
	Value interface{} `json:"value"`
}

// HistoricalFilter is an N-day percent change requirement
type HistoricalFilter struct {
	ConditionID string           `json:"conditionId"`
	Metric      HistoricalMetric `json:"metric"`
	Days        int              `json:"days"`
	Pct         float64          `json:"pct"`
	Op          CompareOp        `json:"op"`
}

// TechnicalFilter is a threshold on a technical indicator
type TechnicalFilter struct {
	ConditionID string        `json:"conditionId"`
	Kind        TechnicalKind `json:"kind"`
	Timeframe   Timeframe     `json:"timeframe"`
	Period      int           `json:"period"`
	Op          CompareOp     `json:"op"`
	Value       float64       `json:"value"`
}

// PostFilter is evaluated once rows are enriched
type PostFilter struct {
	ConditionID string    `json:"conditionId"`
	Kind        PostKind  `json:"kind"`
	Op          CompareOp `json:"op"`
	Value       float64   `json:"value"`
}

// QueryPlan is the compiled, staged form of a rule
type QueryPlan struct {
	Base       []BaseFilter       `json:"base"`
	Historical []HistoricalFilter `json:"historical"`
	Technical  []TechnicalFilter  `json:"technical"`
	Post       []PostFilter       `json:"post"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// BaseValue returns the value of a base parameter
func (p *QueryPlan) BaseValue(param string) (interface{}, bool) {
	for _, b := range p.Base {
		if b.Param == param {
			return b.Value, true
		}
	}
	return nil, false
}

// MaxHistoricalDays returns the widest historical window in the plan
func (p *QueryPlan) MaxHistoricalDays() int {
	maxDays := 0
	for _, h := range p.Historical {
		if h.Days > maxDays {
			maxDays = h.Days
		}
	}
	return maxDays
}
