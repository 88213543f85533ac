package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
)

func writeKB(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoader_LoadAll(t *testing.T) {
	dir := writeKB(t, map[string]string{
		"deals/acme.md":      "# Acme Deal\n\nDetails about the acme deal.",
		"proposals/gamma.md": "# Gamma Proposal\n\nProposal content.",
		"notes.txt":          "not markdown",
	})

	loader := NewLoader(dir, log.NewNop())
	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := make(map[string]document.Document)
	for _, d := range docs {
		byID[d.Metadata.DocID] = d
	}
	assert.Equal(t, document.TypeDeal, byID["acme"].Metadata.DocType)
	assert.Equal(t, document.TypeProposal, byID["gamma"].Metadata.DocType)
	assert.Equal(t, "deals/acme.md", byID["acme"].Metadata.SourceFile)
}

func TestLoader_LoadAll_MissingBase(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing"), log.NewNop())
	docs, err := loader.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoader_LoadFile_EmptyIsSkipped(t *testing.T) {
	dir := writeKB(t, map[string]string{"deals/empty.md": "   \n\n  "})

	loader := NewLoader(dir, log.NewNop())
	doc, err := loader.LoadFile(filepath.Join(dir, "deals", "empty.md"))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoader_MetadataMarkers(t *testing.T) {
	content := `# Acme Corp Deal

**Industry:** Healthcare
**Size:** Mid-Market
**Deal Value:** $1,250,000
**Outcome:** Won
**Tags:** pricing, renewal, emr

Deal narrative follows.`

	dir := writeKB(t, map[string]string{"deals/acme.md": content})

	loader := NewLoader(dir, log.NewNop())
	doc, err := loader.LoadFile(filepath.Join(dir, "deals", "acme.md"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	meta := doc.Metadata
	assert.Equal(t, "Healthcare", meta.Industry)
	assert.Equal(t, document.SizeMidMarket, meta.CompanySize)
	assert.Equal(t, 1250000, meta.DealValue)
	assert.Equal(t, document.OutcomeWon, meta.Outcome)
	assert.Equal(t, []string{"pricing", "renewal", "emr"}, meta.Tags)
}

func TestLoader_MetadataMarkers_Absent(t *testing.T) {
	dir := writeKB(t, map[string]string{"products/widget.md": "# Widget\n\nPlain product doc."})

	loader := NewLoader(dir, log.NewNop())
	doc, err := loader.LoadFile(filepath.Join(dir, "products", "widget.md"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	meta := doc.Metadata
	assert.Empty(t, meta.Industry)
	assert.Empty(t, meta.CompanySize)
	assert.Zero(t, meta.DealValue)
	assert.Empty(t, meta.Outcome)
	assert.Empty(t, meta.Tags)
}

func TestLoader_UnknownDirectoryDefaultsToProduct(t *testing.T) {
	dir := writeKB(t, map[string]string{
		"misc/random.md": "# Random\n\nContent.",
		"toplevel.md":    "# Top\n\nContent.",
	})

	loader := NewLoader(dir, log.NewNop())
	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	for _, d := range docs {
		assert.Equal(t, document.TypeProduct, d.Metadata.DocType)
	}
}

func TestLoader_RecordingsDirectory(t *testing.T) {
	dir := writeKB(t, map[string]string{"recordings/call-01.md": "# Call\n\nTranscript."})

	loader := NewLoader(dir, log.NewNop())
	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, document.TypeRecording, docs[0].Metadata.DocType)
}
