package main

import (
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/spf13/cobra"
)

type compileOutput struct {
	Name    string      `json:"name,omitempty"`
	Plan    interface{} `json:"plan"`
	Unknown []string    `json:"unknown,omitempty"`
}

func newCompileCmd() *cobra.Command {
	var ruleFile string

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the execution plan of a rule file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := rules.LoadRuleFile(ruleFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			unknown, err := rules.ValidateAST(rf.AST)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), compileOutput{
				Name:    rf.Name,
				Plan:    rules.Compile(rf.AST),
				Unknown: unknown,
			})
		},
	}

	cmd.Flags().StringVar(&ruleFile, "rule", "", "Rule file (.json or .toml), - for stdin")
	cmd.MarkFlagRequired("rule")
	return cmd
}
