package rules

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// strictNumber accepts JSON numbers and Go numeric types only
func strictNumber(params map[string]interface{}, key string) (float64, bool) {
	var v float64
	switch n := params[key].(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// looseNumber also accepts numeric strings such as "5" or " 2.5 "
func looseNumber(params map[string]interface{}, key string) (float64, bool) {
	if v, ok := strictNumber(params, key); ok {
		return v, true
	}
	s, ok := params[key].(string)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// positiveWhole returns a whole number > 0, or def when the key is absent
func positiveWhole(params map[string]interface{}, key string, def int) (int, bool) {
	if _, present := params[key]; !present {
		return def, def > 0
	}
	v, ok := looseNumber(params, key)
	if !ok || v <= 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// nonEmptyString returns a trimmed, non-empty string param
func nonEmptyString(params map[string]interface{}, key string) (string, bool) {
	s, ok := params[key].(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// compareOp returns the op param, def when absent, and false when invalid
func compareOp(params map[string]interface{}, def models.CompareOp) (models.CompareOp, bool) {
	raw, present := params["op"]
	if !present || raw == nil {
		return def, true
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	op, err := models.ParseCompareOp(s)
	if err != nil {
		return "", false
	}
	return op, true
}
