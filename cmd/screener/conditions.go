package main

import (
	"fmt"

	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/spf13/cobra"
)

func newConditionsCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "conditions",
		Short: "List the conditions rules can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch group {
			case "":
				return writeJSON(cmd.OutOrStdout(), rules.Catalog())
			case "category":
				return writeJSON(cmd.OutOrStdout(), rules.CatalogByCategory())
			default:
				return fmt.Errorf("unknown group %q (supported: category)", group)
			}
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Group the catalog (category)")
	return cmd
}
