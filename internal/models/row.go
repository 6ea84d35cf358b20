package models

import (
	"fmt"
	"time"
)

// ExplainEntry records one filter evaluated against a row
type ExplainEntry struct {
	ID              string `json:"id"`
	Pass            bool   `json:"pass"`
	Value           string `json:"value,omitempty"`
	WindowShortened bool   `json:"windowShortened,omitempty"`
	EffectiveDays   int    `json:"effectiveDays,omitempty"`
}

// FormatValue renders an observed value for the explain trace
func FormatValue(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// ScreenerRow is one candidate symbol moving through the pipeline
type ScreenerRow struct {
	Symbol          string         `json:"symbol"`
	CompanyName     string         `json:"companyName,omitempty"`
	Price           *float64       `json:"price,omitempty"`
	Sector          string         `json:"sector,omitempty"`
	Industry        string         `json:"industry,omitempty"`
	Exchange        string         `json:"exchange,omitempty"`
	Volume          *float64       `json:"volume,omitempty"`
	MarketCap       *float64       `json:"marketCap,omitempty"`
	PER             *float64       `json:"per,omitempty"`
	RSI             *float64       `json:"rsi,omitempty"`
	PriceChangePct  *float64       `json:"priceChangePct,omitempty"`
	VolumeChangePct *float64       `json:"volumeChangePct,omitempty"`
	DailyChangePct  *float64       `json:"dailyChangePct,omitempty"`
	Explain         []ExplainEntry `json:"explain"`

	// Raw is the upstream screener record, kept only while the pipeline runs
	Raw map[string]interface{} `json:"-"`
}

// AddExplain appends an entry to the explain trace
func (r *ScreenerRow) AddExplain(e ExplainEntry) {
	r.Explain = append(r.Explain, e)
}

// Finalize strips pipeline scratch state
func (r *ScreenerRow) Finalize() {
	r.Raw = nil
	if r.Explain == nil {
		r.Explain = []ExplainEntry{}
	}
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// RunResult is the envelope of one executed rule
type RunResult struct {
	RuleID   string        `json:"ruleId,omitempty"`
	RuleName string        `json:"ruleName,omitempty"`
	Rows     []ScreenerRow `json:"rows"`
	AsOf     time.Time     `json:"asOf"`
	Warnings []string      `json:"warnings,omitempty"`
}
