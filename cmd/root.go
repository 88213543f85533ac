// Package cmd implements the dealbrain command line interface.
//
// Following the pattern of kubectl, hugo, and other standard Go CLI
// tools, all application logic lives here and main.go stays a minimal
// entry point.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dealbrain/dealbrain/db"
	"github.com/dealbrain/dealbrain/internal/chunker"
	"github.com/dealbrain/dealbrain/internal/config"
	"github.com/dealbrain/dealbrain/internal/embedding"
	"github.com/dealbrain/dealbrain/internal/ingest"
	"github.com/dealbrain/dealbrain/internal/llm"
	"github.com/dealbrain/dealbrain/internal/log"
	"github.com/dealbrain/dealbrain/internal/registry"
	"github.com/dealbrain/dealbrain/internal/retriever"
	"github.com/dealbrain/dealbrain/internal/token"
	"github.com/dealbrain/dealbrain/internal/vectorstore"
)

var rootCmd = &cobra.Command{
	Use:   "dealbrain",
	Short: "Sales knowledge retrieval over an embedded vector index",
	Long: `dealbrain ingests a markdown sales knowledge base (deals, proposals,
competitors, products, case studies, industry playbooks), chunks and
embeds the documents into a vector index, and answers queries with
relevance-filtered, token-budgeted, source-cited results.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app bundles the wired application components the subcommands share.
type app struct {
	cfg      *config.Config
	logger   log.Logger
	counter  *token.Counter
	store    vectorstore.Store
	registry *registry.Registry
	pipeline *ingest.Pipeline
	agent    *retriever.Agent
}

func (a *app) close() {
	if a.registry != nil {
		_ = a.registry.Close()
	}
	if pg, ok := a.store.(*vectorstore.Pgvector); ok {
		pg.Close()
	}
}

// loadApp loads configuration and wires every component. The flat backend
// restores its persisted index; the pgvector backend runs migrations.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	counter := token.NewCounter(cfg.ChatModel)

	embedder, err := embedding.NewClient(embedding.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.EmbeddingModel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	if cfg.Backend == config.BackendPgvector {
		if err := db.Migrate(cfg.DatabaseURL(), logger); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	store, err := vectorstore.New(ctx, cfg.Backend, embedder, logger, vectorstore.Options{
		IndexDir: cfg.IndexDir,
		DSN:      cfg.DatabaseURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document registry: %w", err)
	}

	loader := ingest.NewLoader(cfg.KnowledgeBasePath, logger)
	ch := chunker.New(counter, logger)
	pipeline := ingest.NewPipeline(loader, ch, store, reg, logger)

	rewriter, err := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ChatModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	agt := retriever.New(store, rewriter, counter, logger,
		retriever.WithMaxContextTokens(cfg.MaxContextTokens))

	return &app{
		cfg:      cfg,
		logger:   logger,
		counter:  counter,
		store:    store,
		registry: reg,
		pipeline: pipeline,
		agent:    agt,
	}, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
