package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	retrieveTopK    int
	retrieveDocType string
	retrieveFilters []string
	retrieveJSON    bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Run the full retrieval pipeline with citations",
	Long: `Retrieve rewrites the query, searches the vector index, drops
low-relevance results, packs the survivors into the context token
budget, and prints them with source citations.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		filters, err := buildFilters(retrieveDocType, retrieveFilters)
		if err != nil {
			return err
		}

		obs, err := a.agent.Retrieve(ctx, query, filters, retrieveTopK)
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}

		if retrieveJSON {
			data, marshalErr := json.MarshalIndent(obs, "", "  ")
			if marshalErr != nil {
				return marshalErr
			}
			fmt.Println(string(data))
			return nil
		}

		if obs.RewrittenQuery != obs.Query {
			fmt.Printf("Query rewritten: %s\n\n", obs.RewrittenQuery)
		}
		fmt.Println(a.agent.FormatContext(obs))
		fmt.Printf("\n(%d results, %d tokens)\n", obs.TotalResults, obs.TotalTokens)
		return nil
	},
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 5, "maximum number of results (clamped to 1-10)")
	retrieveCmd.Flags().StringVar(&retrieveDocType, "doc-type", "", "restrict to one document type")
	retrieveCmd.Flags().StringArrayVar(&retrieveFilters, "filter", nil, "metadata filter key=value (value may be a comma list)")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "print the retrieval observation as JSON")
	rootCmd.AddCommand(retrieveCmd)
}
