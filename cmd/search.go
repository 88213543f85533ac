package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dealbrain/dealbrain/internal/vectorstore"
)

var (
	searchTopK    int
	searchDocType string
	searchFilters []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Raw similarity search against the vector index",
	Long: `Search embeds the query and returns the closest chunks with their
similarity scores, without query rewriting or token budgeting. Use
retrieve for the full agent pipeline.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		filters, err := buildFilters(searchDocType, searchFilters)
		if err != nil {
			return err
		}

		resp, err := a.store.Search(ctx, vectorstore.SearchQuery{
			Query:   query,
			TopK:    searchTopK,
			Filters: filters,
		})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if len(resp.Results) == 0 {
			fmt.Printf("No results (searched %d chunks)\n", resp.TotalSearched)
			return nil
		}

		fmt.Printf("%d results (searched %d chunks):\n\n", len(resp.Results), resp.TotalSearched)
		for i, r := range resp.Results {
			source, _ := r.Metadata["source_file"].(string)
			docType, _ := r.Metadata["doc_type"].(string)
			fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, r.Score, source, docType)
			fmt.Printf("   %s\n\n", excerpt(r.Content, 200))
		}
		return nil
	},
}

// buildFilters merges the --doc-type shorthand with generic --filter
// key=value pairs.
func buildFilters(docType string, pairs []string) (map[string]any, error) {
	filters := make(map[string]any)
	if docType != "" {
		filters["doc_type"] = docType
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid filter %q (expected key=value)", pair)
		}
		if strings.Contains(value, ",") {
			parts := strings.Split(value, ",")
			members := make([]any, 0, len(parts))
			for _, p := range parts {
				members = append(members, strings.TrimSpace(p))
			}
			filters[key] = members
			continue
		}
		filters[key] = value
	}
	if len(filters) == 0 {
		return nil, nil
	}
	return filters, nil
}

func excerpt(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "maximum number of results")
	searchCmd.Flags().StringVar(&searchDocType, "doc-type", "", "restrict to one document type")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "metadata filter key=value (value may be a comma list)")
	rootCmd.AddCommand(searchCmd)
}
