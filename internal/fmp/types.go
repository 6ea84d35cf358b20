package fmp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the date format used by the provider
const DateLayout = "2006-01-02"

// APIError is a non-success response from the provider
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("FMP API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError is returned when the client-side limiter gives up waiting
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("FMP rate limiter: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Number decodes a JSON number or a numeric string. null and empty strings
// decode to an absent value.
type Number struct {
	value float64
	valid bool
}

// NewNumber returns a present Number holding v
func NewNumber(v float64) Number {
	return Number{value: v, valid: true}
}

// UnmarshalJSON accepts 12.5, "12.5" and null
func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = Number{}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		str = strings.TrimSpace(str)
		if str == "" {
			*n = Number{}
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", str, err)
		}
		*n = NewNumber(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid number %s: %w", s, err)
	}
	*n = NewNumber(v)
	return nil
}

// MarshalJSON writes null for an absent value
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

// Get returns the value and whether it was present
func (n Number) Get() (float64, bool) {
	return n.value, n.valid
}

// Valid reports whether the value was present
func (n Number) Valid() bool {
	return n.valid
}

// Float64 returns the value, 0 when absent
func (n Number) Float64() float64 {
	return n.value
}

// Bar is one daily bar of a historical series
type Bar struct {
	Date   string `json:"date"`
	Close  Number `json:"close"`
	Volume Number `json:"volume"`
}

// Time parses the bar date. Intraday stamps keep their date part only.
func (b Bar) Time() (time.Time, error) {
	return ParseDate(b.Date)
}

type historicalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []Bar  `json:"historical"`
}

// IndicatorPoint is one value of a technical indicator series
type IndicatorPoint struct {
	Date  string
	Value *float64
}

// Time parses the point date
func (p IndicatorPoint) Time() (time.Time, error) {
	return ParseDate(p.Date)
}

// ParseDate parses "2006-01-02" and "2006-01-02 15:04:05" stamps
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse(DateLayout, s)
}

// Record is one loosely-typed object returned by list endpoints
type Record map[string]interface{}

// Float returns the first of keys that holds a finite JSON number
func (r Record) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := r[k].(float64); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, true
		}
	}
	return 0, false
}

// String returns the value of key when it is a string
func (r Record) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}
