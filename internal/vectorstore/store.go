// Package vectorstore provides pluggable vector index backends for chunk
// storage and similarity search. Two backends are available: an in-process
// flat index with file persistence, and a Postgres pgvector index for
// managed deployments.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
)

// Backend names accepted by New.
const (
	BackendFlat     = "flat"
	BackendPgvector = "pgvector"
)

// ErrUnsupportedBackend is returned by New for an unknown backend name.
var ErrUnsupportedBackend = errors.New("vectorstore: unsupported backend")

// Embedder converts text into dense vectors. Both backends embed at add
// and search time through this interface.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// SearchQuery describes a similarity search request.
type SearchQuery struct {
	// Query is the text to embed and search for.
	Query string

	// TopK is the maximum number of results to return.
	TopK int

	// Filters restricts results to chunks whose metadata matches every
	// entry. A list-valued stored field (tags) matches by membership;
	// scalars match by equality. A list filter value matches when any of
	// its members matches.
	Filters map[string]any
}

// SearchResult is a single scored chunk.
type SearchResult struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// SearchResponse is the outcome of a search.
type SearchResponse struct {
	Results       []SearchResult `json:"results"`
	TotalSearched int            `json:"total_searched"`
	Query         string         `json:"query"`
}

// Store is the vector index contract shared by all backends.
type Store interface {
	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// AddChunks embeds and stores chunks. Adding the same chunk again
	// replaces the previous version.
	AddChunks(ctx context.Context, chunks []document.Chunk) (int, error)

	// Search embeds the query text and returns the top matches after
	// filtering.
	Search(ctx context.Context, q SearchQuery) (*SearchResponse, error)

	// AllMetadata returns the metadata of every stored chunk.
	AllMetadata(ctx context.Context) ([]map[string]any, error)

	// Clear removes all stored chunks.
	Clear(ctx context.Context) error

	// Save persists the index if the backend is file-backed; otherwise
	// it is a no-op.
	Save(ctx context.Context) error

	// Load restores a previously saved index if the backend is
	// file-backed; otherwise it is a no-op. A missing index is not an
	// error and leaves the store empty.
	Load(ctx context.Context) error
}

// Options configures backend construction.
type Options struct {
	// IndexDir is the directory for flat index persistence.
	IndexDir string

	// DSN is the Postgres connection string for the pgvector backend.
	DSN string
}

// New constructs the named backend.
func New(ctx context.Context, backend string, embedder Embedder, logger log.Logger, opts Options) (Store, error) {
	switch backend {
	case BackendFlat:
		return NewFlat(embedder, logger, opts.IndexDir), nil
	case BackendPgvector:
		return NewPgvector(ctx, embedder, logger, opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, backend)
	}
}

// matchesFilters reports whether metadata satisfies every filter entry.
// A chunk missing a filtered key is excluded.
func matchesFilters(metadata map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !matchesValue(got, want) {
			return false
		}
	}
	return true
}

// matchesValue checks the stored value first: a stored list (tags)
// matches when any of its members matches the filter value.
func matchesValue(got, want any) bool {
	switch g := got.(type) {
	case []any:
		for _, member := range g {
			if matchesScalar(member, want) {
				return true
			}
		}
		return false
	case []string:
		for _, member := range g {
			if matchesScalar(member, want) {
				return true
			}
		}
		return false
	}
	return matchesScalar(got, want)
}

// matchesScalar compares a stored scalar against a filter value. A list
// filter value matches when the stored value equals any member.
func matchesScalar(got, want any) bool {
	switch w := want.(type) {
	case []any:
		for _, member := range w {
			if valueEqual(got, member) {
				return true
			}
		}
		return false
	case []string:
		for _, member := range w {
			if valueEqual(got, member) {
				return true
			}
		}
		return false
	default:
		return valueEqual(got, want)
	}
}

// valueEqual compares via string form so numeric metadata survives a
// JSON round trip (int vs float64) without breaking filters.
func valueEqual(a, b any) bool {
	return stringify(a) == stringify(b)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
