package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mohamedkhairy/stock-screener/internal/bootstrap"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/spf13/cobra"
)

// newRulesCmd manages the saved rules of the configured store
func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage saved rules in the configured rule store",
	}

	withStore := func(fn func(cmd *cobra.Command, store bootstrap.RuleStore, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := bootstrap.NewRuleStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return fn(cmd, store, args)
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved rules, newest first",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, store bootstrap.RuleStore, args []string) error {
			all, err := store.GetAllRules(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), all)
		}),
	}

	var id string
	var disabled bool
	add := &cobra.Command{
		Use:   "add <file>",
		Short: "Save a rule file",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, store bootstrap.RuleStore, args []string) error {
			rf, err := rules.LoadRuleFile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			rule := &models.SavedRule{
				ID:       id,
				Name:     rf.Name,
				AST:      rf.AST,
				Schedule: rf.Schedule,
				Limit:    rf.Limit,
				Enabled:  !disabled,
			}
			if rule.ID == "" {
				rule.ID = uuid.New().String()
			}
			if err := store.AddRule(cmd.Context(), rule); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rule)
		}),
	}
	add.Flags().StringVar(&id, "id", "", "Rule id (generated when empty)")
	add.Flags().BoolVar(&disabled, "disabled", false, "Save the rule disabled")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved rule",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, store bootstrap.RuleStore, args []string) error {
			if err := store.DeleteRule(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(list, add, del)
	return cmd
}
