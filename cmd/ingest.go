package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealbrain/dealbrain/internal/ingest"
)

var (
	ingestClear bool
	ingestWatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load, chunk, embed, and index the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.pipeline.Run(ctx, ingestClear)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}

		fmt.Printf("Ingested %d documents (%d chunks) in %s\n",
			report.Documents, report.Chunks, report.Duration.Round(time.Millisecond))
		for docType, count := range report.ByType {
			fmt.Printf("  %s: %d\n", docType, count)
		}

		if ingestWatch {
			watcher := ingest.NewWatcher(a.pipeline, a.cfg.KnowledgeBasePath, a.logger)
			fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", a.cfg.KnowledgeBasePath)
			return watcher.Watch(ctx)
		}

		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestClear, "clear", false, "clear the index and registry before ingesting")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep running and re-ingest files as they change")
	rootCmd.AddCommand(ingestCmd)
}
