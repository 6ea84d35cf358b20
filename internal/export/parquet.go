package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
	"github.com/parquet-go/parquet-go"
)

// ResultRow is one screener row as written to parquet
type ResultRow struct {
	RuleID          string   `parquet:"rule_id"`
	AsOf            int64    `parquet:"as_of"` // unix milliseconds
	Symbol          string   `parquet:"symbol"`
	CompanyName     string   `parquet:"company_name,optional"`
	Sector          string   `parquet:"sector,optional"`
	Exchange        string   `parquet:"exchange,optional"`
	Price           *float64 `parquet:"price,optional"`
	Volume          *float64 `parquet:"volume,optional"`
	MarketCap       *float64 `parquet:"market_cap,optional"`
	PER             *float64 `parquet:"per,optional"`
	RSI             *float64 `parquet:"rsi,optional"`
	PriceChangePct  *float64 `parquet:"price_change_pct,optional"`
	VolumeChangePct *float64 `parquet:"volume_change_pct,optional"`
	DailyChangePct  *float64 `parquet:"daily_change_pct,optional"`
	Explain         string   `parquet:"explain"` // JSON array
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// ParquetSink writes one parquet file per run
type ParquetSink struct {
	dir string
}

// NewParquetSink creates dir if needed and returns a sink writing into it
func NewParquetSink(dir string) (*ParquetSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	return &ParquetSink{dir: dir}, nil
}

func (s *ParquetSink) Name() string { return "parquet" }

// Path returns the file a result is written to
func (s *ParquetSink) Path(result models.RunResult) string {
	rule := result.RuleID
	if rule == "" {
		rule = "adhoc"
	}
	rule = unsafeName.ReplaceAllString(rule, "_")
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.parquet", rule, result.AsOf.UTC().Format("20060102T150405Z")))
}

// Publish writes result to its own file
func (s *ParquetSink) Publish(ctx context.Context, result models.RunResult) error {
	rows, err := ToResultRows(result)
	if err != nil {
		return err
	}

	path := s.Path(result)
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.WithContext(ctx).Info("Run result exported",
		logger.String("path", path),
		logger.Int("rows", len(rows)),
	)
	return nil
}

func (s *ParquetSink) Close() error { return nil }

// ToResultRows flattens a run result for columnar storage
func ToResultRows(result models.RunResult) ([]ResultRow, error) {
	rows := make([]ResultRow, 0, len(result.Rows))
	asOf := result.AsOf.UnixMilli()
	for _, r := range result.Rows {
		explain, err := json.Marshal(r.Explain)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal explain of %s: %w", r.Symbol, err)
		}
		rows = append(rows, ResultRow{
			RuleID:          result.RuleID,
			AsOf:            asOf,
			Symbol:          r.Symbol,
			CompanyName:     r.CompanyName,
			Sector:          r.Sector,
			Exchange:        r.Exchange,
			Price:           r.Price,
			Volume:          r.Volume,
			MarketCap:       r.MarketCap,
			PER:             r.PER,
			RSI:             r.RSI,
			PriceChangePct:  r.PriceChangePct,
			VolumeChangePct: r.VolumeChangePct,
			DailyChangePct:  r.DailyChangePct,
			Explain:         string(explain),
		})
	}
	return rows, nil
}
