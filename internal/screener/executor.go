package screener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/enrich"
	"github.com/mohamedkhairy/stock-screener/internal/fmp"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
	"github.com/mohamedkhairy/stock-screener/pkg/workpool"
)

// DefaultLimit is the screener result size used when a run asks for none
const DefaultLimit = 50

// Pipeline stage names used in logs and metrics
const (
	StageBase       = "base"
	StageHistorical = "historical"
	StageTechnical  = "technical"
	StageEnrich     = "enrich"
	StagePost       = "post"
)

// BaseScreener runs the upstream screener query
type BaseScreener interface {
	Screener(ctx context.Context, apiKey string, params url.Values) ([]fmp.Record, error)
}

// SeriesProvider returns a newest-first daily series covering maxDays
type SeriesProvider interface {
	Series(ctx context.Context, apiKey, symbol string, maxDays int, now time.Time) ([]fmp.Bar, error)
}

// RSIProvider returns the latest RSI of a symbol
type RSIProvider interface {
	RSI(ctx context.Context, apiKey, symbol string, timeframe models.Timeframe, period int) (enrich.Reading, error)
}

// PERProvider returns the P/E ratio of a symbol, nil when unknown
type PERProvider interface {
	PER(ctx context.Context, apiKey, symbol string) (*float64, error)
}

// Credentials carries the upstream API key of one run
type Credentials struct {
	APIKey string
}

// Executor runs compiled query plans against the upstream provider
type Executor struct {
	base        BaseScreener
	historical  SeriesProvider
	technical   RSIProvider
	fundamental PERProvider

	concurrency int
	now         func() time.Time
}

// Option configures the Executor
type Option func(*Executor)

// WithClock sets the clock used for historical cutoffs
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithConcurrency bounds the per-symbol fetches of each stage
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExecutor creates an executor
func NewExecutor(base BaseScreener, historical SeriesProvider, technical RSIProvider, fundamental PERProvider, opts ...Option) *Executor {
	e := &Executor{
		base:        base,
		historical:  historical,
		technical:   technical,
		fundamental: fundamental,
		concurrency: workpool.DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs plan and returns the surviving rows in screener order.
// A missing API key yields a *ConfigurationError before any request is
// made; a failed base query yields a *BaseQueryError. Per-symbol
// enrichment failures only drop the affected symbol.
func (e *Executor) Execute(ctx context.Context, plan models.QueryPlan, limit int, creds Credentials) ([]models.ScreenerRow, error) {
	if creds.APIKey == "" {
		return nil, errMissingKey
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := e.runBase(ctx, plan, limit, creds)
	if err != nil {
		return nil, err
	}

	if len(plan.Historical) > 0 {
		rows = e.timed(ctx, StageHistorical, rows, func() []*models.ScreenerRow {
			return e.runHistorical(ctx, plan, rows, creds)
		})
	}
	if len(plan.Technical) > 0 {
		rows = e.timed(ctx, StageTechnical, rows, func() []*models.ScreenerRow {
			return e.runTechnical(ctx, plan, rows, creds)
		})
	}
	rows = e.timed(ctx, StageEnrich, rows, func() []*models.ScreenerRow {
		e.enrichPER(ctx, rows, creds)
		return rows
	})
	if len(plan.Post) > 0 {
		rows = e.timed(ctx, StagePost, rows, func() []*models.ScreenerRow {
			return applyPost(plan, rows)
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.ScreenerRow, 0, len(rows))
	for _, r := range rows {
		r.Finalize()
		out = append(out, *r)
	}
	return out, nil
}

// timed runs one stage, recording its duration and the rows it dropped
func (e *Executor) timed(ctx context.Context, stage string, in []*models.ScreenerRow, run func() []*models.ScreenerRow) []*models.ScreenerRow {
	start := time.Now()
	out := run()
	elapsed := time.Since(start)

	logger.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	logger.WithContext(ctx).Debug("Stage complete",
		logger.Stage(stage),
		logger.Int("rows_in", len(in)),
		logger.Int("rows_out", len(out)),
		logger.Duration("duration", elapsed),
	)
	return out
}

func (e *Executor) runBase(ctx context.Context, plan models.QueryPlan, limit int, creds Credentials) ([]*models.ScreenerRow, error) {
	start := time.Now()
	defer func() {
		logger.StageDuration.WithLabelValues(StageBase).Observe(time.Since(start).Seconds())
	}()

	records, err := e.base.Screener(ctx, creds.APIKey, baseQuery(plan.Base, limit))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.ErrorsTotal.WithLabelValues("screener", "base_query").Inc()

		var apiErr *fmp.APIError
		if errors.As(err, &apiErr) {
			return nil, &BaseQueryError{Status: apiErr.StatusCode, Detail: apiErr.Message, Err: err}
		}
		return nil, &BaseQueryError{Status: http.StatusBadGateway, Detail: err.Error(), Err: err}
	}

	rows := make([]*models.ScreenerRow, 0, len(records))
	for _, raw := range records {
		row, ok := mapRow(raw)
		if !ok {
			logger.RowsDropped.WithLabelValues(StageBase, "no_symbol").Inc()
			continue
		}
		rows = append(rows, &row)
	}

	logger.WithContext(ctx).Debug("Base query complete",
		logger.Int("records", len(records)),
		logger.Int("rows", len(rows)),
	)
	return rows, nil
}

// stage runs fn for every row with bounded concurrency and keeps the rows
// for which it returned true, in input order. An error or panic drops only
// its own row.
func (e *Executor) stage(ctx context.Context, name string, rows []*models.ScreenerRow, fn func(context.Context, *models.ScreenerRow) (bool, error)) []*models.ScreenerRow {
	results := workpool.Run(ctx, rows, e.concurrency, fn)

	kept := rows[:0:0]
	for i, res := range results {
		switch {
		case res.Err != nil:
			logger.RowsDropped.WithLabelValues(name, "error").Inc()
			logger.WithContext(ctx).Debug("Symbol dropped",
				logger.Stage(name),
				logger.Symbol(rows[i].Symbol),
				logger.ErrorField(res.Err),
			)
		case !res.Value:
			logger.RowsDropped.WithLabelValues(name, "filtered").Inc()
		default:
			kept = append(kept, rows[i])
		}
	}
	return kept
}

func (e *Executor) runHistorical(ctx context.Context, plan models.QueryPlan, rows []*models.ScreenerRow, creds Credentials) []*models.ScreenerRow {
	now := e.now()
	maxDays := plan.MaxHistoricalDays()
	cutoff := enrich.Cutoff(now, maxDays)

	return e.stage(ctx, StageHistorical, rows, func(ctx context.Context, row *models.ScreenerRow) (bool, error) {
		series, err := e.historical.Series(ctx, creds.APIKey, row.Symbol, maxDays, now)
		if err != nil {
			return false, fmt.Errorf("historical series: %w", err)
		}

		for _, f := range plan.Historical {
			change, ok := enrich.ComputeChange(series, f.Metric, cutoff)
			entry := models.ExplainEntry{ID: f.ConditionID}
			if ok {
				entry.Pass = f.Op.Compare(change.Pct, f.Pct)
				entry.Value = models.FormatValue(change.Pct)
				if change.Shortened {
					entry.WindowShortened = true
					entry.EffectiveDays = change.EffectiveDays
				}
				switch f.Metric {
				case models.MetricPriceChangePctNDays:
					row.PriceChangePct = models.Float(change.Pct)
				case models.MetricVolumeChangePctNDays:
					row.VolumeChangePct = models.Float(change.Pct)
				}
			}
			row.AddExplain(entry)
			if !entry.Pass {
				return false, nil
			}
		}
		return true, nil
	})
}

func (e *Executor) runTechnical(ctx context.Context, plan models.QueryPlan, rows []*models.ScreenerRow, creds Credentials) []*models.ScreenerRow {
	return e.stage(ctx, StageTechnical, rows, func(ctx context.Context, row *models.ScreenerRow) (bool, error) {
		for _, f := range plan.Technical {
			if f.Kind != models.TechnicalRSI {
				continue
			}
			reading, err := e.technical.RSI(ctx, creds.APIKey, row.Symbol, f.Timeframe, f.Period)
			if err != nil {
				return false, fmt.Errorf("rsi: %w", err)
			}

			entry := models.ExplainEntry{ID: f.ConditionID}
			if reading.Has() {
				v := *reading.Value
				entry.Pass = f.Op.Compare(v, f.Value)
				entry.Value = models.FormatValue(v)
				row.RSI = models.Float(v)
			}
			row.AddExplain(entry)
			if !entry.Pass {
				return false, nil
			}
		}
		return true, nil
	})
}

// enrichPER fills a missing P/E from the fundamentals cascade. It never
// drops a row.
func (e *Executor) enrichPER(ctx context.Context, rows []*models.ScreenerRow, creds Credentials) {
	var missing []*models.ScreenerRow
	for _, r := range rows {
		if r.PER == nil {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return
	}

	results := workpool.Run(ctx, missing, e.concurrency, func(ctx context.Context, row *models.ScreenerRow) (*float64, error) {
		return e.fundamental.PER(ctx, creds.APIKey, row.Symbol)
	})
	for i, res := range results {
		if res.Err != nil {
			logger.WithContext(ctx).Debug("P/E enrichment failed",
				logger.Symbol(missing[i].Symbol),
				logger.ErrorField(res.Err),
			)
			continue
		}
		if res.Value != nil {
			missing[i].PER = res.Value
		}
	}
}

// applyPost evaluates the post filters; a row without P/E fails them
func applyPost(plan models.QueryPlan, rows []*models.ScreenerRow) []*models.ScreenerRow {
	kept := rows[:0:0]
	for _, row := range rows {
		pass := true
		for _, f := range plan.Post {
			if f.Kind != models.PostPER {
				continue
			}
			entry := models.ExplainEntry{ID: f.ConditionID}
			if row.PER != nil {
				entry.Pass = f.Op.Compare(*row.PER, f.Value)
				entry.Value = models.FormatValue(*row.PER)
			}
			row.AddExplain(entry)
			if !entry.Pass {
				pass = false
				break
			}
		}
		if pass {
			kept = append(kept, row)
		} else {
			logger.RowsDropped.WithLabelValues(StagePost, "filtered").Inc()
		}
	}
	return kept
}
