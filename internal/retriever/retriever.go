// Package retriever implements the retrieval agent: query rewriting,
// vector search, relevance thresholding, token-budgeted selection, and
// citation-ready output assembly.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealbrain/dealbrain/internal/agent"
	"github.com/dealbrain/dealbrain/internal/log"
	"github.com/dealbrain/dealbrain/internal/token"
	"github.com/dealbrain/dealbrain/internal/vectorstore"
)

// Retrieval tuning constants.
const (
	// MaxContextTokens leaves room for system prompt and response.
	MaxContextTokens = 4000

	// MinRelevanceScore is the minimum similarity to include a result.
	MinRelevanceScore = 0.5

	DefaultTopK = 5
	MaxTopK     = 10
	MinTopK     = 1

	// maxRewriteLength rejects runaway rewrites.
	maxRewriteLength = 500

	// rewriteSkipWords: queries at or under this word count are assumed
	// already search-optimized.
	rewriteSkipWords = 2
)

const rewriteSystemPrompt = `You are a search query optimizer for a sales knowledge base.

Your job is to rewrite queries to maximize retrieval quality from a vector database.

The knowledge base contains:
- Past deal records (company, industry, outcome, learnings)
- Competitor analyses
- Product documentation and pricing
- Industry playbooks
- Case studies and proposals

Rules:
1. Expand abbreviations and jargon
2. Add relevant synonyms
3. Make implicit context explicit
4. Keep the rewritten query concise (1-2 sentences max)
5. Focus on searchable concepts, not questions

Output ONLY the rewritten query, nothing else.`

// noResultsSentinel is returned by FormatContext for empty result sets.
const noResultsSentinel = "No relevant documents found."

// Rewriter performs text rewriting via an external LLM call.
type Rewriter interface {
	Rewrite(ctx context.Context, system, prompt string) (string, error)
}

// Searcher is the read side of the vector index.
type Searcher interface {
	Search(ctx context.Context, q vectorstore.SearchQuery) (*vectorstore.SearchResponse, error)
}

// RetrievalResult is a search result with source fields promoted out of
// the metadata map for citation.
type RetrievalResult struct {
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	DocID      string  `json:"doc_id"`
	DocType    string  `json:"doc_type"`
	SourceFile string  `json:"source_file"`
	ChunkIndex int     `json:"chunk_index"`
}

// RetrievalObservation aggregates one retrieval call.
type RetrievalObservation struct {
	Query          string            `json:"query"`
	RewrittenQuery string            `json:"rewritten_query"`
	Results        []RetrievalResult `json:"results"`
	TotalResults   int               `json:"total_results"`
	TotalTokens    int               `json:"total_tokens"`
	FiltersApplied map[string]any    `json:"filters_applied,omitempty"`
}

// RewriteOutcome distinguishes a successful rewrite from a fallback to
// the original query, even when both return identical text.
type RewriteOutcome struct {
	Query    string
	FellBack bool
}

// Agent retrieves knowledge from the vector index.
//
// Retrieval is intentional, not automatic; more context is not always
// better; every result must be traceable to its source.
type Agent struct {
	store            Searcher
	rewriter         Rewriter
	counter          *token.Counter
	logger           log.Logger
	maxContextTokens int
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxContextTokens overrides the context token budget.
func WithMaxContextTokens(n int) Option {
	return func(a *Agent) { a.maxContextTokens = n }
}

// New creates a retrieval agent. rewriter may be nil, in which case every
// query passes through unrewritten.
func New(store Searcher, rewriter Rewriter, counter *token.Counter, logger log.Logger, opts ...Option) *Agent {
	a := &Agent{
		store:            store,
		rewriter:         rewriter,
		counter:          counter,
		logger:           logger,
		maxContextTokens: MaxContextTokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Retrieve runs the full pipeline: clamp top_k, rewrite, search, filter
// by relevance, select within the token budget, and project results.
func (a *Agent) Retrieve(ctx context.Context, query string, filters map[string]any, topK int) (*RetrievalObservation, error) {
	topK = clampTopK(topK)

	rewrite := a.rewriteQuery(ctx, query, filters)
	a.logger.Info("query rewritten", "original", query, "rewritten", rewrite.Query, "fell_back", rewrite.FellBack)

	resp, err := a.store.Search(ctx, vectorstore.SearchQuery{
		Query:   rewrite.Query,
		TopK:    topK,
		Filters: filters,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	relevant := make([]vectorstore.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Score >= MinRelevanceScore {
			relevant = append(relevant, r)
		}
	}

	selected := a.selectWithinTokenLimit(relevant)

	results := make([]RetrievalResult, 0, len(selected))
	totalTokens := 0
	for _, r := range selected {
		rr := fromSearchResult(r)
		totalTokens += a.counter.Count(rr.Content)
		results = append(results, rr)
	}

	a.logger.Info("retrieval complete", "results", len(results), "tokens", totalTokens)

	return &RetrievalObservation{
		Query:          query,
		RewrittenQuery: rewrite.Query,
		Results:        results,
		TotalResults:   len(results),
		TotalTokens:    totalTokens,
		FiltersApplied: filters,
	}, nil
}

// Reason processes a retrieval task and emits the retrieve decision, the
// only decision type this agent produces.
func (a *Agent) Reason(ctx context.Context, input agent.TaskInput) (*agent.AgentDecision, error) {
	filters, _ := input.Context["filters"].(map[string]any)
	topK := DefaultTopK
	switch v := input.Context["top_k"].(type) {
	case int:
		topK = v
	case float64:
		topK = int(v)
	}

	obs, err := a.Retrieve(ctx, input.Task, filters, topK)
	if err != nil {
		return nil, err
	}

	return &agent.AgentDecision{
		DecisionType: agent.DecisionRetrieve,
		Reasoning: fmt.Sprintf("Retrieved %d results for query: %s",
			obs.TotalResults, obs.RewrittenQuery),
		ToolCall: &agent.ToolCall{
			ToolName: "vector_search",
			Arguments: map[string]any{
				"query":   obs.RewrittenQuery,
				"top_k":   topK,
				"filters": filters,
			},
		},
	}, nil
}

// ToObservation packages a retrieval as a generic tool observation.
func (a *Agent) ToObservation(retrieval *RetrievalObservation) agent.Observation {
	results := make([]map[string]any, len(retrieval.Results))
	for i, r := range retrieval.Results {
		results[i] = map[string]any{
			"content":     r.Content,
			"score":       r.Score,
			"doc_id":      r.DocID,
			"doc_type":    r.DocType,
			"source_file": r.SourceFile,
			"chunk_index": r.ChunkIndex,
		}
	}

	return agent.Observation{
		Source:  "retrieval",
		Success: true,
		Result: map[string]any{
			"query":           retrieval.Query,
			"rewritten_query": retrieval.RewrittenQuery,
			"total_results":   retrieval.TotalResults,
			"total_tokens":    retrieval.TotalTokens,
			"results":         results,
		},
	}
}

// FormatContext renders results as a citation-annotated block for prompt
// injection.
func (a *Agent) FormatContext(retrieval *RetrievalObservation) string {
	if len(retrieval.Results) == 0 {
		return noResultsSentinel
	}

	sections := make([]string, 0, len(retrieval.Results))
	for i, r := range retrieval.Results {
		sections = append(sections, fmt.Sprintf(`[Source %d: %s]
Type: %s
Relevance: %.2f
---
%s
---`, i+1, r.SourceFile, r.DocType, r.Score, r.Content))
	}

	header := fmt.Sprintf("Retrieved %d relevant documents:\n", len(retrieval.Results))
	return header + strings.Join(sections, "\n\n")
}

// rewriteQuery rewrites a query for better vector search. Failure never
// aborts retrieval: any error, empty result, or oversized result falls
// back to the original query.
func (a *Agent) rewriteQuery(ctx context.Context, query string, filters map[string]any) RewriteOutcome {
	if len(strings.Fields(query)) <= rewriteSkipWords {
		return RewriteOutcome{Query: query}
	}
	if a.rewriter == nil {
		return RewriteOutcome{Query: query, FellBack: true}
	}

	contextStr := "None"
	if len(filters) > 0 {
		contextStr = fmt.Sprintf("%v", filters)
	}
	prompt := fmt.Sprintf("Original query: %s\nContext: %s\n\nRewritten query:", query, contextStr)

	rewritten, err := a.rewriter.Rewrite(ctx, rewriteSystemPrompt, prompt)
	if err != nil {
		a.logger.Warn("query rewrite failed, using original", "error", err)
		return RewriteOutcome{Query: query, FellBack: true}
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" || len(rewritten) > maxRewriteLength {
		return RewriteOutcome{Query: query, FellBack: true}
	}

	return RewriteOutcome{Query: rewritten}
}

// selectWithinTokenLimit walks score-ordered results and keeps a prefix
// that fits the token budget. The first result that would exceed the
// budget stops selection; later, smaller results are never considered.
func (a *Agent) selectWithinTokenLimit(results []vectorstore.SearchResult) []vectorstore.SearchResult {
	var selected []vectorstore.SearchResult
	current := 0

	for _, r := range results {
		n := a.counter.Count(r.Content)
		if current+n > a.maxContextTokens {
			a.logger.Debug("token limit reached",
				"used", current,
				"limit", a.maxContextTokens,
				"selected", len(selected))
			break
		}
		selected = append(selected, r)
		current += n
	}

	return selected
}

func clampTopK(topK int) int {
	if topK < MinTopK {
		return MinTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}

func fromSearchResult(r vectorstore.SearchResult) RetrievalResult {
	rr := RetrievalResult{Content: r.Content, Score: r.Score}

	if v, ok := r.Metadata["doc_id"].(string); ok {
		rr.DocID = v
	}
	if v, ok := r.Metadata["doc_type"].(string); ok {
		rr.DocType = v
	}
	if v, ok := r.Metadata["source_file"].(string); ok {
		rr.SourceFile = v
	}
	switch v := r.Metadata["chunk_index"].(type) {
	case int:
		rr.ChunkIndex = v
	case float64:
		rr.ChunkIndex = int(v)
	}

	return rr
}
