package rules

import "sort"

// Condition categories shown by clients
const (
	CategoryBase        = "Base Filter"
	CategoryPriceVolume = "Price/Volume"
	CategoryTechnical   = "Technical"
	CategoryFundamental = "Fundamental"
)

// ParamDef describes one condition parameter for rule editors
type ParamDef struct {
	Key      string        `json:"key"`
	Label    string        `json:"label"`
	Type     string        `json:"type"` // number, integer, percent, select, days, string
	Unit     string        `json:"unit,omitempty"`
	Min      *float64      `json:"min,omitempty"`
	Max      *float64      `json:"max,omitempty"`
	Step     float64       `json:"step,omitempty"`
	Options  []ParamOption `json:"options,omitempty"`
	Default  interface{}   `json:"default,omitempty"`
	Required bool          `json:"required,omitempty"`
}

// ParamOption is one choice of a select parameter
type ParamOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ConditionDef is a catalog entry
type ConditionDef struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Params      []ParamDef `json:"params"`
	SuggestedOp string     `json:"suggestedOp,omitempty"`
}

func bound(v float64) *float64 {
	return &v
}

var opParam = ParamDef{
	Key:   "op",
	Label: "Comparison",
	Type:  "select",
	Options: []ParamOption{
		{Value: "gte", Label: ">="},
		{Value: "lte", Label: "<="},
	},
}

var catalog = []ConditionDef{
	{
		ID:          IDExchange,
		Name:        "Exchange equals",
		Category:    CategoryBase,
		Description: "Limit universe by exchange.",
		Params: []ParamDef{{
			Key: "value", Label: "Exchange", Type: "select", Default: "NASDAQ", Required: true,
			Options: []ParamOption{{"NASDAQ", "NASDAQ"}, {"NYSE", "NYSE"}, {"AMEX", "AMEX"}},
		}},
		SuggestedOp: "AND",
	},
	{
		ID:          IDSector,
		Name:        "Sector equals",
		Category:    CategoryBase,
		Description: "Sector must equal the selected value.",
		Params: []ParamDef{{
			Key: "value", Label: "Sector", Type: "select",
			Options: []ParamOption{
				{"Technology", "Technology"},
				{"Financial Services", "Financial Services"},
				{"Healthcare", "Healthcare"},
				{"Consumer Cyclical", "Consumer Cyclical"},
				{"Consumer Defensive", "Consumer Defensive"},
				{"Industrials", "Industrials"},
				{"Energy", "Energy"},
				{"Basic Materials", "Basic Materials"},
				{"Utilities", "Utilities"},
				{"Real Estate", "Real Estate"},
				{"Communication Services", "Communication Services"},
			},
		}},
		SuggestedOp: "AND",
	},
	{
		ID:          IDMarketCapMin,
		Name:        "Market cap >=",
		Category:    CategoryBase,
		Description: "Minimum market capitalization (USD).",
		Params:      []ParamDef{{Key: "value", Label: "Min Market Cap (USD)", Type: "number", Unit: "USD", Min: bound(0), Step: 1, Default: 1_000_000_000}},
		SuggestedOp: "AND",
	},
	{
		ID:          IDMarketCapMax,
		Name:        "Market cap <=",
		Category:    CategoryBase,
		Description: "Maximum market capitalization (USD).",
		Params:      []ParamDef{{Key: "value", Label: "Max Market Cap (USD)", Type: "number", Unit: "USD", Min: bound(0), Step: 1}},
		SuggestedOp: "AND",
	},
	{
		ID:          IDPriceChangePctN,
		Name:        "Price change over last N days",
		Category:    CategoryPriceVolume,
		Description: "Percent change from the close N days ago to the latest close.",
		Params: []ParamDef{
			{Key: "pct", Label: "Percent", Type: "percent", Unit: "%", Min: bound(-100), Max: bound(1000), Step: 0.1, Required: true},
			{Key: "days", Label: "Days", Type: "days", Unit: "d", Min: bound(1), Max: bound(252), Default: 20, Required: true},
			opParam,
		},
		SuggestedOp: "AND",
	},
	{
		ID:          IDVolumeChangePct,
		Name:        "Volume change over last N days",
		Category:    CategoryPriceVolume,
		Description: "Percent change in daily volume versus N days ago.",
		Params: []ParamDef{
			{Key: "pct", Label: "Percent", Type: "percent", Unit: "%", Min: bound(-100), Max: bound(1000), Step: 1, Required: true},
			{Key: "days", Label: "Days", Type: "days", Unit: "d", Min: bound(1), Max: bound(252), Default: 20, Required: true},
			opParam,
		},
		SuggestedOp: "AND",
	},
	{
		ID:          IDRSI,
		Name:        "RSI threshold",
		Category:    CategoryTechnical,
		Description: "Relative Strength Index compared with a threshold.",
		Params: []ParamDef{
			{Key: "value", Label: "RSI", Type: "number", Min: bound(0), Max: bound(100), Default: 30, Required: true},
			{Key: "period", Label: "Period", Type: "integer", Min: bound(2), Max: bound(50), Default: DefaultRSIPeriod},
			{
				Key: "timeframe", Label: "Timeframe", Type: "select", Default: "daily",
				Options: []ParamOption{{"daily", "Daily"}, {"1min", "1 min"}, {"5min", "5 min"}, {"15min", "15 min"}, {"30min", "30 min"}, {"1hour", "1 hour"}, {"4hour", "4 hours"}},
			},
			{Key: "op", Label: "Comparison", Type: "select", Default: "lte", Options: opParam.Options},
		},
		SuggestedOp: "AND",
	},
	{
		ID:          IDPER,
		Name:        "P/E ratio",
		Category:    CategoryFundamental,
		Description: "Price/Earnings, trailing twelve months when available.",
		Params: []ParamDef{
			{Key: "value", Label: "P/E", Type: "number", Min: bound(0), Max: bound(200), Step: 0.1, Required: true},
			{Key: "op", Label: "Comparison", Type: "select", Default: "lte", Options: opParam.Options},
		},
	},
	{
		ID:          IDPETTMLte,
		Name:        "P/E (TTM) <= X",
		Category:    CategoryFundamental,
		Description: "Price/Earnings trailing twelve months.",
		Params:      []ParamDef{{Key: "value", Label: "P/E <=", Type: "number", Min: bound(0), Max: bound(200), Step: 0.1, Required: true}},
	},
}

// Catalog returns the conditions the compiler understands
func Catalog() []ConditionDef {
	out := make([]ConditionDef, len(catalog))
	copy(out, catalog)
	return out
}

// CatalogByCategory groups the catalog by category
func CatalogByCategory() map[string][]ConditionDef {
	grouped := make(map[string][]ConditionDef)
	for _, c := range catalog {
		grouped[c.Category] = append(grouped[c.Category], c)
	}
	return grouped
}

// Categories returns the catalog categories in sorted order
func Categories() []string {
	grouped := CatalogByCategory()
	out := make([]string, 0, len(grouped))
	for c := range grouped {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
