package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
	"github.com/dealbrain/dealbrain/internal/testutil"
	"github.com/dealbrain/dealbrain/internal/vectorstore"
)

// integrationEmbedder returns a fixed vector per known text. All vectors
// are 1536-dimensional to match the chunks schema.
type integrationEmbedder struct {
	vectors map[string][]float32
}

func newIntegrationEmbedder() *integrationEmbedder {
	return &integrationEmbedder{vectors: make(map[string][]float32)}
}

func (e *integrationEmbedder) set(text string, lead ...float32) {
	v := make([]float32, 1536)
	copy(v, lead)
	e.vectors[text] = v
}

func (e *integrationEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, 1536), nil
}

func (e *integrationEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *integrationEmbedder) Dimensions() int { return 1536 }

func TestPgvector_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	emb := newIntegrationEmbedder()
	emb.set("enterprise pricing deal", 1, 0)
	emb.set("startup onboarding notes", 0, 1)
	emb.set("pricing", 0.9, 0.1)

	store := vectorstore.NewPgvectorWithQuerier(tdb.Pool, emb, log.NewNop())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	added, err := store.AddChunks(ctx, []document.Chunk{
		{
			Content: "enterprise pricing deal",
			Metadata: document.Metadata{
				DocID:       "deal-001",
				DocType:     document.TypeDeal,
				Industry:    "fintech",
				CompanySize: document.SizeEnterprise,
				Tags:        []string{"pricing", "enterprise"},
				SourceFile:  "deal-001.md",
			},
			ChunkIndex:  0,
			TotalChunks: 1,
		},
		{
			Content: "startup onboarding notes",
			Metadata: document.Metadata{
				DocID:      "prod-001",
				DocType:    document.TypeProduct,
				SourceFile: "prod-001.md",
			},
			ChunkIndex:  0,
			TotalChunks: 1,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resp, err := store.Search(ctx, vectorstore.SearchQuery{Query: "pricing", TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "enterprise pricing deal", resp.Results[0].Content)
	assert.Greater(t, resp.Results[0].Score, 0.5)
	assert.Equal(t, 2, resp.TotalSearched)

	resp, err = store.Search(ctx, vectorstore.SearchQuery{
		Query:   "pricing",
		TopK:    5,
		Filters: map[string]any{"doc_type": "product"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "startup onboarding notes", resp.Results[0].Content)

	resp, err = store.Search(ctx, vectorstore.SearchQuery{
		Query:   "pricing",
		TopK:    5,
		Filters: map[string]any{"doc_type": []any{"deal", "case_study"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "deal-001", resp.Results[0].Metadata["doc_id"])

	// A scalar tag filter matches against the stored tag array.
	resp, err = store.Search(ctx, vectorstore.SearchQuery{
		Query:   "pricing",
		TopK:    5,
		Filters: map[string]any{"tags": "pricing"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "deal-001", resp.Results[0].Metadata["doc_id"])

	resp, err = store.Search(ctx, vectorstore.SearchQuery{
		Query:   "pricing",
		TopK:    5,
		Filters: map[string]any{"tags": []string{"renewal", "enterprise"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "deal-001", resp.Results[0].Metadata["doc_id"])

	metas, err := store.AllMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 2)

	// Re-adding the same chunk updates in place.
	_, err = store.AddChunks(ctx, []document.Chunk{{
		Content: "enterprise pricing deal v2",
		Metadata: document.Metadata{
			DocID:      "deal-001",
			DocType:    document.TypeDeal,
			SourceFile: "deal-001.md",
		},
		ChunkIndex:  0,
		TotalChunks: 1,
	}})
	require.NoError(t, err)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Clear(ctx))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
