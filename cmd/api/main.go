package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/api"
	"github.com/mohamedkhairy/stock-screener/internal/bootstrap"
	"github.com/mohamedkhairy/stock-screener/internal/config"
	"github.com/mohamedkhairy/stock-screener/internal/export"
	"github.com/mohamedkhairy/stock-screener/internal/schedule"
	"github.com/mohamedkhairy/stock-screener/internal/storage"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting screener API service",
		logger.Int("port", cfg.API.Port),
		logger.Int("rate_limit_rps", cfg.API.RateLimitRPS),
		logger.String("rule_store", cfg.RuleStore.Type),
		logger.String("cache_backend", cfg.Cache.Backend),
		logger.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
	)

	ctx := context.Background()

	// Redis backs the shared cache and the redis export sink
	var redisClient storage.RedisClient
	if bootstrap.NeedsRedis(cfg) {
		client, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
		}
		defer client.Close()
		redisClient = client
	}

	runner, err := bootstrap.NewRunner(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to initialize screener", logger.ErrorField(err))
	}

	ruleStore, err := bootstrap.NewRuleStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize rule store", logger.ErrorField(err))
	}
	defer ruleStore.Close()

	// Websocket clients receive scheduled and manual run results
	auth := api.NewAuthManager(cfg.API.JWTSecret)
	hub := export.NewHub(export.DefaultHubConfig(), func(r *http.Request) string {
		return api.UserIDFromContext(r.Context())
	})

	sinks, err := bootstrap.NewSinks(cfg, redisClient, hub)
	if err != nil {
		logger.Fatal("Failed to initialize export sinks", logger.ErrorField(err))
	}
	defer sinks.Close()

	var scheduler *schedule.Scheduler
	var reloader api.Reloader
	if cfg.Scheduler.Enabled {
		scheduler = schedule.NewScheduler(ruleStore, runner, sinks, schedule.Config{
			ReloadInterval: cfg.Scheduler.ReloadInterval,
			RunTimeout:     cfg.Scheduler.RunTimeout,
		})
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatal("Failed to start scheduler", logger.ErrorField(err))
		}
		reloader = scheduler
	}

	router := api.NewRouter(api.RouterConfig{
		Screener:  api.NewScreenerHandler(runner, cfg.API.RequestTimeout),
		Rules:     api.NewRuleHandler(ruleStore, runner, sinks, reloader, cfg.API.RequestTimeout),
		WebSocket: hub,
		Ready: func(ctx context.Context) error {
			if _, err := ruleStore.GetAllRules(ctx); err != nil {
				return fmt.Errorf("rule store: %w", err)
			}
			return nil
		},
	})

	// Apply middleware
	middlewares := api.ChainMiddleware(
		api.ErrorHandlingMiddleware(),
		api.CORSMiddleware(cfg.API.AllowedOrigins),
		api.TraceMiddleware(),
		api.LoggingMiddleware(),
		api.RateLimitMiddleware(cfg.API.RateLimitRPS),
		api.AuthMiddleware(auth, cfg.API.AuthEnabled),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           middlewares(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", logger.ErrorField(err))
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down screener API service")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", logger.ErrorField(err))
	}

	logger.Info("Screener API service stopped")
}
