// Package document defines the domain model shared across ingestion,
// storage, and retrieval: documents, their typed metadata, and the chunks a
// document is split into.
package document

import (
	"fmt"
	"strings"
	"time"
)

// DocType identifies the category of a knowledge-base document. The set is
// closed; directories outside the known mapping default to TypeProduct at
// load time.
type DocType string

const (
	TypeDeal       DocType = "deal"
	TypeProposal   DocType = "proposal"
	TypeCompetitor DocType = "competitor"
	TypeProduct    DocType = "product"
	TypeCaseStudy  DocType = "case_study"
	TypeIndustry   DocType = "industry"
	TypeRecording  DocType = "recording"
)

// CompanySize buckets a customer by headcount band.
type CompanySize string

const (
	SizeStartup    CompanySize = "startup"
	SizeMidMarket  CompanySize = "mid-market"
	SizeEnterprise CompanySize = "enterprise"
)

// Outcome is the final status of a deal.
type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
	OutcomePending Outcome = "pending"
)

// ParseCompanySize maps free-form marker text to a CompanySize. Returns ""
// when the value does not name a known size.
func ParseCompanySize(s string) CompanySize {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
	switch CompanySize(normalized) {
	case SizeStartup, SizeMidMarket, SizeEnterprise:
		return CompanySize(normalized)
	}
	return ""
}

// ParseOutcome maps free-form marker text to an Outcome. Returns "" when the
// value does not name a known outcome.
func ParseOutcome(s string) Outcome {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch Outcome(normalized) {
	case OutcomeWon, OutcomeLost, OutcomePending:
		return Outcome(normalized)
	}
	return ""
}

// Metadata describes a document for filtering and citation. DocID, DocType,
// and SourceFile are always present; the rest is optional and omitted from
// the serialized form when unset. Metadata is copied by value into every
// chunk derived from its document.
type Metadata struct {
	DocID       string
	DocType     DocType
	Industry    string
	CompanySize CompanySize
	DealValue   int
	Outcome     Outcome
	Date        *time.Time
	Tags        []string
	SourceFile  string
}

// ToMap serializes metadata for the vector store boundary. Enumerations are
// stringified here so no typed value ever crosses into storage; unset
// optional fields are omitted entirely, which makes "missing key" a filter
// failure by construction.
func (m Metadata) ToMap() map[string]any {
	out := map[string]any{
		"doc_id":      m.DocID,
		"doc_type":    string(m.DocType),
		"source_file": m.SourceFile,
	}
	if m.Industry != "" {
		out["industry"] = m.Industry
	}
	if m.CompanySize != "" {
		out["company_size"] = string(m.CompanySize)
	}
	if m.DealValue > 0 {
		out["deal_value"] = m.DealValue
	}
	if m.Outcome != "" {
		out["outcome"] = string(m.Outcome)
	}
	if m.Date != nil {
		out["date"] = m.Date.Format("2006-01-02")
	}
	if len(m.Tags) > 0 {
		tags := make([]any, len(m.Tags))
		for i, t := range m.Tags {
			tags[i] = t
		}
		out["tags"] = tags
	}
	return out
}

// Document is a raw knowledge-base file plus its metadata. Immutable once
// constructed; consumed by the chunker and discarded.
type Document struct {
	Content  string
	Metadata Metadata
}

// Chunk is a token-bounded slice of a document's text. Every chunk carries a
// full copy of the parent metadata so it is independently filterable and
// citable. Invariant: 0 <= ChunkIndex < TotalChunks.
type Chunk struct {
	Content     string
	Metadata    Metadata
	ChunkIndex  int
	TotalChunks int
}

// ToMap serializes the chunk's metadata plus its position fields for storage.
func (c Chunk) ToMap() map[string]any {
	out := c.Metadata.ToMap()
	out["chunk_index"] = c.ChunkIndex
	out["total_chunks"] = c.TotalChunks
	return out
}

// VectorID derives the stable identifier used by remote index backends.
func (c Chunk) VectorID() string {
	return fmt.Sprintf("%s_%d", c.Metadata.DocID, c.ChunkIndex)
}
