package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
)

// Flat is an exact in-memory inner-product index. Vectors and metadata
// live in parallel slices; persistence writes a binary vector file plus a
// JSON metadata file under IndexDir, guarded by a file lock so concurrent
// processes do not interleave writes.
type Flat struct {
	embedder Embedder
	logger   log.Logger
	dir      string

	mu       sync.RWMutex
	ids      []string
	vectors  [][]float32
	contents []string
	metadata []map[string]any
}

const (
	indexFileName    = "index.bin"
	metadataFileName = "metadata.json"
	lockFileName     = "index.lock"

	// overfetchFactor widens the candidate pool before metadata
	// filtering so filtered searches still fill TopK.
	overfetchFactor = 3
)

// NewFlat creates an empty flat index persisting to dir.
func NewFlat(embedder Embedder, logger log.Logger, dir string) *Flat {
	return &Flat{
		embedder: embedder,
		logger:   logger,
		dir:      dir,
	}
}

// Count reports the number of stored chunks.
func (f *Flat) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids), nil
}

// AddChunks embeds and stores chunks. A chunk whose vector ID is already
// present replaces the stored entry.
func (f *Flat) AddChunks(ctx context.Context, chunks []document.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := f.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	positions := make(map[string]int, len(f.ids))
	for i, id := range f.ids {
		positions[id] = i
	}

	for i, c := range chunks {
		id := c.VectorID()
		meta := c.ToMap()
		if pos, ok := positions[id]; ok {
			f.vectors[pos] = vectors[i]
			f.contents[pos] = c.Content
			f.metadata[pos] = meta
			continue
		}
		positions[id] = len(f.ids)
		f.ids = append(f.ids, id)
		f.vectors = append(f.vectors, vectors[i])
		f.contents = append(f.contents, c.Content)
		f.metadata = append(f.metadata, meta)
	}

	f.logger.Debug("chunks added to flat index", "count", len(chunks), "total", len(f.ids))
	return len(chunks), nil
}

// Search embeds the query and returns the TopK highest inner-product
// matches after metadata filtering.
func (f *Flat) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	f.mu.RLock()
	total := len(f.ids)
	f.mu.RUnlock()

	resp := &SearchResponse{Query: q.Query, TotalSearched: total}
	if total == 0 {
		return resp, nil
	}

	queryVec, err := f.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Fetch extra candidates when filters are set, then cut back to
	// TopK after the filter pass.
	fetch := q.TopK
	if len(q.Filters) > 0 {
		fetch = q.TopK * overfetchFactor
	}
	if fetch > total {
		fetch = total
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	type scored struct {
		idx   int
		score float64
	}
	candidates := make([]scored, 0, len(f.vectors))
	for i, v := range f.vectors {
		candidates = append(candidates, scored{idx: i, score: dot(queryVec, v)})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > fetch {
		candidates = candidates[:fetch]
	}

	for _, c := range candidates {
		if len(resp.Results) >= q.TopK {
			break
		}
		meta := f.metadata[c.idx]
		if len(q.Filters) > 0 && !matchesFilters(meta, q.Filters) {
			continue
		}
		resp.Results = append(resp.Results, SearchResult{
			Content:  f.contents[c.idx],
			Score:    c.score,
			Metadata: meta,
		})
	}

	return resp, nil
}

// AllMetadata returns the metadata of every stored chunk.
func (f *Flat) AllMetadata(ctx context.Context) ([]map[string]any, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]map[string]any, len(f.metadata))
	copy(out, f.metadata)
	return out, nil
}

// Clear removes all stored chunks.
func (f *Flat) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ids = nil
	f.vectors = nil
	f.contents = nil
	f.metadata = nil
	return nil
}

type metadataFile struct {
	IDs      []string         `json:"ids"`
	Contents []string         `json:"contents"`
	Metadata []map[string]any `json:"metadata"`
}

// Save writes the index to IndexDir: vectors as little-endian float32
// with a dimension/count header, everything else as JSON.
func (f *Flat) Save(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	lock := flock.New(filepath.Join(f.dir, lockFileName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	defer lock.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()

	dim := 0
	if len(f.vectors) > 0 {
		dim = len(f.vectors[0])
	}

	buf := make([]byte, 8+len(f.vectors)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(dim))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(f.vectors)))
	off := 8
	for _, v := range f.vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(x))
			off += 4
		}
	}
	if err := os.WriteFile(filepath.Join(f.dir, indexFileName), buf, 0o644); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}

	meta, err := json.Marshal(metadataFile{
		IDs:      f.ids,
		Contents: f.contents,
		Metadata: f.metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, metadataFileName), meta, 0o644); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}

	f.logger.Info("flat index saved", "dir", f.dir, "chunks", len(f.ids))
	return nil
}

// Load restores a saved index. A missing index, or a missing directory
// altogether, leaves the store empty.
func (f *Flat) Load(ctx context.Context) error {
	// Stat before locking: flock cannot create the lock file in a
	// directory that does not exist yet.
	if _, err := os.Stat(filepath.Join(f.dir, indexFileName)); os.IsNotExist(err) {
		f.logger.Debug("no saved index found", "dir", f.dir)
		return nil
	}

	lock := flock.New(filepath.Join(f.dir, lockFileName))
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	defer lock.Unlock()

	buf, err := os.ReadFile(filepath.Join(f.dir, indexFileName))
	if os.IsNotExist(err) {
		f.logger.Debug("no saved index found", "dir", f.dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}
	if len(buf) < 8 {
		return fmt.Errorf("index file truncated: %d bytes", len(buf))
	}

	dim := int(binary.LittleEndian.Uint32(buf[0:4]))
	count := int(binary.LittleEndian.Uint32(buf[4:8]))
	want := 8 + count*dim*4
	if len(buf) != want {
		return fmt.Errorf("index file size mismatch: got %d bytes, want %d", len(buf), want)
	}

	vectors := make([][]float32, count)
	off := 8
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		vectors[i] = v
	}

	metaBuf, err := os.ReadFile(filepath.Join(f.dir, metadataFileName))
	if os.IsNotExist(err) {
		f.logger.Warn("index file present but metadata sidecar missing, starting empty", "dir", f.dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metadata file: %w", err)
	}
	var meta metadataFile
	if err := json.Unmarshal(metaBuf, &meta); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(meta.IDs) != count || len(meta.Contents) != count || len(meta.Metadata) != count {
		return fmt.Errorf("metadata count mismatch: index has %d vectors", count)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.ids = meta.IDs
	f.vectors = vectors
	f.contents = meta.Contents
	f.metadata = meta.Metadata

	f.logger.Info("flat index loaded", "dir", f.dir, "chunks", count)
	return nil
}

func dot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
