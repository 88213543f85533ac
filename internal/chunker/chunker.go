// Package chunker splits documents into token-bounded, overlap-preserving
// chunks ready for embedding.
//
// Splitting is type-aware: each document type has its own (size, overlap)
// pair, since a deal record and a product sheet have very different natural
// section lengths. The same token counter used here also drives retrieval
// context budgeting, so chunk-size decisions and budget decisions never
// disagree about token math.
package chunker

import (
	"regexp"
	"strings"

	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
	"github.com/dealbrain/dealbrain/internal/token"
)

// Config is the (size, overlap) pair for one document type, in tokens.
type Config struct {
	ChunkSize int
	Overlap   int
}

// Per-type chunking configuration. Deal records are long-form narratives and
// get the largest windows; proposals and product sheets are dense and split
// finer.
var chunkConfigs = map[document.DocType]Config{
	document.TypeDeal:       {ChunkSize: 1000, Overlap: 200},
	document.TypeProposal:   {ChunkSize: 500, Overlap: 100},
	document.TypeCompetitor: {ChunkSize: 800, Overlap: 150},
	document.TypeProduct:    {ChunkSize: 500, Overlap: 100},
	document.TypeCaseStudy:  {ChunkSize: 800, Overlap: 150},
	document.TypeIndustry:   {ChunkSize: 600, Overlap: 120},
	document.TypeRecording:  {ChunkSize: 800, Overlap: 150},
}

var defaultConfig = Config{ChunkSize: 500, Overlap: 100}

// ConfigFor returns the chunking configuration for a document type,
// falling back to the default pair for unmapped types.
func ConfigFor(t document.DocType) Config {
	if cfg, ok := chunkConfigs[t]; ok {
		return cfg
	}
	return defaultConfig
}

// Chunker splits documents using type-specific strategies. Safe for
// concurrent use; it holds no per-document state.
type Chunker struct {
	counter *token.Counter
	logger  log.Logger
}

// New creates a Chunker backed by the given token counter.
func New(counter *token.Counter, logger log.Logger) *Chunker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Chunker{counter: counter, logger: logger}
}

// Chunk splits a document into ordered chunks. Deterministic for identical
// input and configuration; an empty document yields no chunks.
func (c *Chunker) Chunk(doc document.Document) []document.Chunk {
	cfg := ConfigFor(doc.Metadata.DocType)

	paragraphs := splitParagraphs(doc.Content)
	texts := c.merge(paragraphs, cfg.ChunkSize, cfg.Overlap)

	chunks := make([]document.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = document.Chunk{
			Content:     text,
			Metadata:    doc.Metadata,
			ChunkIndex:  i,
			TotalChunks: len(texts),
		}
	}

	c.logger.Debug("chunked document",
		"doc_id", doc.Metadata.DocID,
		"chunks", len(chunks),
		"chunk_size", cfg.ChunkSize,
		"overlap", cfg.Overlap)
	return chunks
}

var blankLineRun = regexp.MustCompile(`\n{2,}`)

// splitParagraphs breaks text on blank-line runs and before markdown
// headings (#, ##, ###), trimming empty fragments.
func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range blankLineRun.Split(text, -1) {
		for _, p := range splitAtHeadings(block) {
			p = strings.TrimSpace(p)
			if p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
	}
	return paragraphs
}

// splitAtHeadings starts a new fragment at each line beginning with one to
// three '#' characters followed by a space or tab.
func splitAtHeadings(block string) []string {
	lines := strings.Split(block, "\n")
	var fragments []string
	var current []string
	for _, line := range lines {
		if isHeading(line) && len(current) > 0 {
			fragments = append(fragments, strings.Join(current, "\n"))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		fragments = append(fragments, strings.Join(current, "\n"))
	}
	return fragments
}

func isHeading(line string) bool {
	hashes := 0
	for hashes < len(line) && line[hashes] == '#' {
		hashes++
	}
	if hashes < 1 || hashes > 3 || hashes >= len(line) {
		return false
	}
	return line[hashes] == ' ' || line[hashes] == '\t'
}

// merge greedily packs paragraphs into chunks of at most chunkSize tokens,
// carrying the most recent paragraph forward as overlap when it fits within
// the overlap budget. A single paragraph larger than chunkSize falls back to
// sentence packing with a character-suffix overlap.
func (c *Chunker) merge(paragraphs []string, chunkSize, overlap int) []string {
	var chunks []string
	var current []string
	currentTokens := 0

	flush := func(sep string) {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, sep))
			current = current[:0]
			currentTokens = 0
		}
	}

	for _, para := range paragraphs {
		paraTokens := c.counter.Count(para)

		if paraTokens > chunkSize {
			flush("\n\n")
			for _, sentence := range splitSentences(para) {
				sentTokens := c.counter.Count(sentence)
				if currentTokens+sentTokens > chunkSize && len(current) > 0 {
					joined := strings.Join(current, " ")
					chunks = append(chunks, joined)
					carry := runeSuffix(joined, overlap)
					if carry != "" {
						current = append(current[:0], carry)
						currentTokens = c.counter.Count(carry)
					} else {
						current = current[:0]
						currentTokens = 0
					}
				}
				current = append(current, sentence)
				currentTokens += sentTokens
			}
			continue
		}

		if currentTokens+paraTokens > chunkSize && len(current) > 0 {
			last := current[len(current)-1]
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = current[:0]
			currentTokens = 0
			// Carry the previous paragraph into the next chunk when it fits
			// the overlap budget.
			if lastTokens := c.counter.Count(last); lastTokens <= overlap {
				current = append(current, last)
				currentTokens = lastTokens
			}
		}

		current = append(current, para)
		currentTokens += paraTokens
	}

	flush("\n\n")
	return chunks
}

// splitSentences splits on '.', '!', or '?' followed by whitespace. A
// sentence that alone exceeds the chunk size is preserved whole, never
// truncated.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if isSentenceEnd(runes[i]) && isSpace(runes[i+1]) {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			// Skip the whitespace run.
			j := i + 1
			for j < len(runes) && isSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		s := strings.TrimSpace(string(runes[start:]))
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// runeSuffix returns the trailing n runes of s, rune-safe.
func runeSuffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
