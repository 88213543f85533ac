package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealbrain/dealbrain/internal/chunker"
	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
	"github.com/dealbrain/dealbrain/internal/registry"
	"github.com/dealbrain/dealbrain/internal/vectorstore"
)

// Recorder persists per-document ingestion bookkeeping. *registry.Registry
// satisfies it; tests substitute a mock.
type Recorder interface {
	Record(ctx context.Context, e registry.Entry) error
	Clear(ctx context.Context) error
}

// Report summarizes one ingestion run.
type Report struct {
	RunID     string         `json:"run_id"`
	Documents int            `json:"documents"`
	Chunks    int            `json:"chunks"`
	ByType    map[string]int `json:"by_type"`
	Duration  time.Duration  `json:"duration"`
}

// Pipeline drives load, chunk, embed, and index for a knowledge base.
type Pipeline struct {
	loader   *Loader
	chunker  *chunker.Chunker
	store    vectorstore.Store
	recorder Recorder
	logger   log.Logger
}

// NewPipeline wires an ingestion pipeline. recorder may be nil when no
// document inventory is kept.
func NewPipeline(loader *Loader, ch *chunker.Chunker, store vectorstore.Store, recorder Recorder, logger log.Logger) *Pipeline {
	return &Pipeline{
		loader:   loader,
		chunker:  ch,
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

// Run ingests the whole knowledge base. With clear set, the index and the
// registry are emptied first so the run is a full rebuild; without it,
// documents upsert over any previous version.
func (p *Pipeline) Run(ctx context.Context, clear bool) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:  uuid.NewString(),
		ByType: make(map[string]int),
	}

	if clear {
		if err := p.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear index: %w", err)
		}
		if p.recorder != nil {
			if err := p.recorder.Clear(ctx); err != nil {
				return nil, fmt.Errorf("clear registry: %w", err)
			}
		}
	}

	docs, err := p.loader.LoadAll()
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		n, err := p.ingestDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		report.Documents++
		report.Chunks += n
		report.ByType[string(doc.Metadata.DocType)]++
	}

	if err := p.store.Save(ctx); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}

	report.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		"run_id", report.RunID,
		"documents", report.Documents,
		"chunks", report.Chunks,
		"duration", report.Duration)
	return report, nil
}

// IngestFile ingests a single file, used by watch mode on file change.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	doc, err := p.loader.LoadFile(path)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, nil
	}

	n, err := p.ingestDocument(ctx, *doc)
	if err != nil {
		return 0, err
	}

	if err := p.store.Save(ctx); err != nil {
		return 0, fmt.Errorf("save index: %w", err)
	}
	return n, nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, doc document.Document) (int, error) {
	chunks := p.chunker.Chunk(doc)
	if len(chunks) == 0 {
		p.logger.Debug("document produced no chunks", "doc_id", doc.Metadata.DocID)
		return 0, nil
	}

	if _, err := p.store.AddChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index document %s: %w", doc.Metadata.DocID, err)
	}

	if p.recorder != nil {
		err := p.recorder.Record(ctx, registry.Entry{
			DocID:      doc.Metadata.DocID,
			DocType:    string(doc.Metadata.DocType),
			SourceFile: doc.Metadata.SourceFile,
			ChunkCount: len(chunks),
		})
		if err != nil {
			return 0, fmt.Errorf("record document %s: %w", doc.Metadata.DocID, err)
		}
	}

	p.logger.Debug("document ingested", "doc_id", doc.Metadata.DocID, "chunks", len(chunks))
	return len(chunks), nil
}
