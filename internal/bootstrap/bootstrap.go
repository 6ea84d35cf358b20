// Package bootstrap builds the screener components shared by the API
// server and the CLI from a loaded Config.
package bootstrap

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/mohamedkhairy/stock-screener/internal/config"
	"github.com/mohamedkhairy/stock-screener/internal/enrich"
	"github.com/mohamedkhairy/stock-screener/internal/export"
	"github.com/mohamedkhairy/stock-screener/internal/fmp"
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/mohamedkhairy/stock-screener/internal/screener"
	"github.com/mohamedkhairy/stock-screener/internal/storage"
	"github.com/mohamedkhairy/stock-screener/pkg/cache"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

// RuleStore is a RuleStore that owns resources
type RuleStore interface {
	rules.RuleStore
	Close() error
}

type nopCloser struct {
	rules.RuleStore
}

func (nopCloser) Close() error { return nil }

// rateLimit converts a fractional rate to the client's whole requests per
// second, rounding up so a positive rate never disables pacing
func rateLimit(rps float64) int {
	if rps <= 0 {
		return 0
	}
	return int(math.Ceil(rps))
}

// NewFMPClient creates the upstream client
func NewFMPClient(cfg config.FMPConfig) *fmp.Client {
	return fmp.NewClient(
		fmp.WithBaseURL(cfg.BaseURL),
		fmp.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		fmp.WithRateLimit(rateLimit(cfg.RateLimitRPS)),
	)
}

// newReadingCache returns the enrichment cache of the configured backend.
// redis may be nil when the backend is memory.
func newReadingCache(cfg *config.Config, redis storage.RedisClient, name string) (cache.Cache[enrich.Reading], error) {
	switch cfg.Cache.Backend {
	case "redis":
		if redis == nil {
			return nil, fmt.Errorf("cache backend redis requires a redis client")
		}
		return storage.NewRedisCache[enrich.Reading](redis, cfg.Cache.KeyPrefix+name+":"), nil
	default:
		return cache.NewMemoryCache[enrich.Reading](), nil
	}
}

// NewRunner wires the fmp client, enrichment services and executor into a
// Runner using the configured API key
func NewRunner(cfg *config.Config, redis storage.RedisClient) (*screener.Runner, error) {
	client := NewFMPClient(cfg.FMP)

	rsiCache, err := newReadingCache(cfg, redis, "rsi")
	if err != nil {
		return nil, err
	}
	perCache, err := newReadingCache(cfg, redis, "per")
	if err != nil {
		return nil, err
	}

	techOpts := []enrich.TechnicalOption{enrich.WithTechnicalTTL(cfg.Screener.RSITTL)}
	if enrich.RSISource(cfg.Screener.RSISource) == enrich.RSISourceComputed {
		techOpts = append(techOpts, enrich.WithComputedRSI(client))
	}

	executor := screener.NewExecutor(
		client,
		enrich.NewHistoricalService(client),
		enrich.NewTechnicalService(client, rsiCache, techOpts...),
		enrich.NewFundamentalService(client, perCache, enrich.WithFundamentalTTL(cfg.Screener.PERTTL)),
		screener.WithConcurrency(cfg.Screener.MaxConcurrency),
	)

	if cfg.FMP.APIKey == "" {
		logger.Warn("FMP_API_KEY is not set; runs will fail until it is configured")
	}

	return screener.NewRunner(executor,
		screener.Credentials{APIKey: cfg.FMP.APIKey},
		screener.WithDefaultLimit(cfg.Screener.DefaultLimit),
	), nil
}

// NewRuleStore opens the configured rule store
func NewRuleStore(ctx context.Context, cfg *config.Config) (RuleStore, error) {
	switch cfg.RuleStore.Type {
	case "postgres":
		store, err := rules.NewPostgresRuleStore(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := rules.NewSQLiteRuleStore(ctx, cfg.RuleStore.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		return nopCloser{rules.NewInMemoryRuleStore()}, nil
	default:
		return nil, fmt.Errorf("unknown rule store %q", cfg.RuleStore.Type)
	}
}

// NewSinks builds the configured export sinks. redis and hub may be nil.
func NewSinks(cfg *config.Config, redis storage.RedisClient, hub *export.Hub) (*export.MultiSink, error) {
	var sinks []export.Sink

	if cfg.Export.ParquetDir != "" {
		s, err := export.NewParquetSink(cfg.Export.ParquetDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if len(cfg.Export.KafkaBrokers) > 0 {
		s, err := export.NewKafkaSink(cfg.Export.KafkaBrokers, cfg.Export.KafkaTopic)
		if err != nil {
			export.Multi(sinks...).Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if cfg.Export.RedisChannel != "" {
		if redis == nil {
			export.Multi(sinks...).Close()
			return nil, fmt.Errorf("EXPORT_REDIS_CHANNEL requires a redis client")
		}
		sinks = append(sinks, export.NewRedisSink(redis, cfg.Export.RedisChannel))
	}

	if hub != nil {
		sinks = append(sinks, hub)
	}

	multi := export.Multi(sinks...)
	for _, s := range sinks {
		logger.Info("Export sink enabled", logger.String("sink", export.Name(s)))
	}
	return multi, nil
}

// NeedsRedis reports whether the config uses Redis
func NeedsRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend == "redis" || cfg.Export.RedisChannel != ""
}
