package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/mohamedkhairy/stock-screener/internal/bootstrap"
	"github.com/mohamedkhairy/stock-screener/internal/config"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/mohamedkhairy/stock-screener/internal/storage"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		ruleFile string
		limit    int
		export   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a rule file and print the matching rows",
		Long: `Compile the rule in --rule (JSON or TOML, "-" for stdin) and run it.
--limit overrides the limit of the file. --export also publishes the
result to the configured export sinks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := rules.LoadRuleFile(ruleFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if limit > 0 {
				rf.Limit = limit
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var redisClient storage.RedisClient
			if bootstrap.NeedsRedis(cfg) {
				client, err := storage.NewRedisClient(ctx, cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				redisClient = client
			}

			runner, err := bootstrap.NewRunner(cfg, redisClient)
			if err != nil {
				return err
			}

			rule := &models.SavedRule{Name: rf.Name, AST: rf.AST, Limit: rf.Limit}
			result, err := runner.RunRule(ctx, rule)
			if err != nil {
				return err
			}

			if export {
				if err := publish(ctx, cfg, redisClient, result); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&ruleFile, "rule", "", "Rule file (.json or .toml), - for stdin")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (overrides the rule file)")
	cmd.Flags().BoolVar(&export, "export", false, "Publish the result to the configured export sinks")
	cmd.MarkFlagRequired("rule")
	return cmd
}

func publish(ctx context.Context, cfg *config.Config, redis storage.RedisClient, result models.RunResult) error {
	sinks, err := bootstrap.NewSinks(cfg, redis, nil)
	if err != nil {
		return err
	}
	defer sinks.Close()
	return sinks.Publish(ctx, result)
}
