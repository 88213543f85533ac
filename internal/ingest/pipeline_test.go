package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealbrain/dealbrain/internal/chunker"
	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
	"github.com/dealbrain/dealbrain/internal/registry"
	"github.com/dealbrain/dealbrain/internal/token"
	"github.com/dealbrain/dealbrain/internal/vectorstore"
)

// mockStore records calls without embedding anything.
type mockStore struct {
	added      []document.Chunk
	clearCalls int
	saveCalls  int
}

func (m *mockStore) Count(ctx context.Context) (int, error) { return len(m.added), nil }

func (m *mockStore) AddChunks(ctx context.Context, chunks []document.Chunk) (int, error) {
	m.added = append(m.added, chunks...)
	return len(chunks), nil
}

func (m *mockStore) Search(ctx context.Context, q vectorstore.SearchQuery) (*vectorstore.SearchResponse, error) {
	return &vectorstore.SearchResponse{Query: q.Query}, nil
}

func (m *mockStore) AllMetadata(ctx context.Context) ([]map[string]any, error) { return nil, nil }

func (m *mockStore) Clear(ctx context.Context) error {
	m.clearCalls++
	m.added = nil
	return nil
}

func (m *mockStore) Save(ctx context.Context) error {
	m.saveCalls++
	return nil
}

func (m *mockStore) Load(ctx context.Context) error { return nil }

type mockRecorder struct {
	entries    []registry.Entry
	clearCalls int
}

func (m *mockRecorder) Record(ctx context.Context, e registry.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRecorder) Clear(ctx context.Context) error {
	m.clearCalls++
	m.entries = nil
	return nil
}

func newTestPipeline(t *testing.T, kbDir string) (*Pipeline, *mockStore, *mockRecorder) {
	t.Helper()

	counter := token.NewCounter("gpt-4o-mini")

	store := &mockStore{}
	recorder := &mockRecorder{}
	loader := NewLoader(kbDir, log.NewNop())
	ch := chunker.New(counter, log.NewNop())

	return NewPipeline(loader, ch, store, recorder, log.NewNop()), store, recorder
}

func TestPipeline_Run(t *testing.T) {
	dir := writeKB(t, map[string]string{
		"deals/acme.md":    "# Acme\n\nDeal content for acme.",
		"deals/globex.md":  "# Globex\n\nDeal content for globex.",
		"products/core.md": "# Core\n\nProduct documentation.",
	})

	p, store, recorder := newTestPipeline(t, dir)

	report, err := p.Run(context.Background(), false)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, map[string]int{"deal": 2, "product": 1}, report.ByType)

	assert.Len(t, store.added, 3)
	assert.Equal(t, 1, store.saveCalls)
	assert.Zero(t, store.clearCalls)

	require.Len(t, recorder.entries, 3)
	for _, e := range recorder.entries {
		assert.Equal(t, 1, e.ChunkCount)
	}
}

func TestPipeline_Run_Clear(t *testing.T) {
	dir := writeKB(t, map[string]string{"deals/acme.md": "# Acme\n\nContent."})

	p, store, recorder := newTestPipeline(t, dir)

	_, err := p.Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, store.clearCalls)
	assert.Equal(t, 1, recorder.clearCalls)
	assert.Len(t, store.added, 1)
}

func TestPipeline_Run_EmptyKnowledgeBase(t *testing.T) {
	p, store, _ := newTestPipeline(t, t.TempDir())

	report, err := p.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
	assert.Zero(t, report.Chunks)
	assert.Equal(t, 1, store.saveCalls)
}

func TestPipeline_IngestFile(t *testing.T) {
	dir := writeKB(t, map[string]string{"deals/acme.md": "# Acme\n\nContent."})

	p, store, recorder := newTestPipeline(t, dir)

	n, err := p.IngestFile(context.Background(), dir+"/deals/acme.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, store.added, 1)
	assert.Len(t, recorder.entries, 1)
	assert.Equal(t, 1, store.saveCalls)
}

func TestPipeline_NilRecorder(t *testing.T) {
	dir := writeKB(t, map[string]string{"deals/acme.md": "# Acme\n\nContent."})

	counter := token.NewCounter("gpt-4o-mini")

	store := &mockStore{}
	p := NewPipeline(NewLoader(dir, log.NewNop()), chunker.New(counter, log.NewNop()), store, nil, log.NewNop())

	report, err := p.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
}
