package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and registry statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		count, err := a.store.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count chunks: %w", err)
		}

		fmt.Printf("Backend: %s\n", a.cfg.Backend)
		fmt.Printf("Indexed chunks: %d\n", count)

		entries, err := a.registry.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		counts, err := a.registry.CountByType(ctx)
		if err != nil {
			return fmt.Errorf("failed to count documents: %w", err)
		}

		fmt.Printf("Documents: %d\n", len(entries))
		for docType, n := range counts {
			fmt.Printf("  %s: %d\n", docType, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
