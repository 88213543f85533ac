// Package ingest loads knowledge base documents and feeds them through
// chunking into the vector index.
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
)

// dirTypes maps knowledge base subdirectories to document types. Files
// outside a known directory default to product documentation.
var dirTypes = map[string]document.DocType{
	"deals":        document.TypeDeal,
	"proposals":    document.TypeProposal,
	"competitors":  document.TypeCompetitor,
	"products":     document.TypeProduct,
	"case_studies": document.TypeCaseStudy,
	"industries":   document.TypeIndustry,
	"recordings":   document.TypeRecording,
}

// Inline marker patterns, matched case-insensitively anywhere in the body.
var (
	industryRe  = regexp.MustCompile(`(?i)\*\*Industry:\*\*\s*(\w+)`)
	sizeRe      = regexp.MustCompile(`(?i)\*\*Size:\*\*\s*([\w-]+)`)
	dealValueRe = regexp.MustCompile(`(?i)\*\*Deal Value:\*\*\s*\$?([\d,]+)`)
	outcomeRe   = regexp.MustCompile(`(?i)\*\*Outcome:\*\*\s*(\w+)`)
	tagsRe      = regexp.MustCompile(`\*\*Tags:\*\*\s*(.+)`)
)

// Loader reads markdown documents from a knowledge base directory tree.
type Loader struct {
	basePath string
	logger   log.Logger
}

// NewLoader creates a loader rooted at basePath.
func NewLoader(basePath string, logger log.Logger) *Loader {
	return &Loader{basePath: basePath, logger: logger}
}

// LoadAll walks the knowledge base and loads every markdown file. Files
// that fail to load are logged and skipped. A missing knowledge base
// yields an empty slice, not an error.
func (l *Loader) LoadAll() ([]document.Document, error) {
	if _, err := os.Stat(l.basePath); os.IsNotExist(err) {
		l.logger.Warn("knowledge base not found", "path", l.basePath)
		return nil, nil
	}

	var docs []document.Document
	err := filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		doc, loadErr := l.LoadFile(path)
		if loadErr != nil {
			l.logger.Error("failed to load document", "path", path, "error", loadErr)
			return nil
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk knowledge base: %w", err)
	}

	l.logger.Info("documents loaded", "count", len(docs), "path", l.basePath)
	return docs, nil
}

// LoadFile loads a single markdown file. Empty files return nil.
func (l *Loader) LoadFile(path string) (*document.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	meta, err := l.extractMetadata(path, text)
	if err != nil {
		return nil, err
	}

	return &document.Document{Content: text, Metadata: meta}, nil
}

func (l *Loader) extractMetadata(path, content string) (document.Metadata, error) {
	rel, err := filepath.Rel(l.basePath, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	docType := document.TypeProduct
	if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
		if t, ok := dirTypes[parts[0]]; ok {
			docType = t
		}
	}

	base := filepath.Base(path)
	docID := strings.TrimSuffix(base, filepath.Ext(base))

	meta := document.Metadata{
		DocID:      docID,
		DocType:    docType,
		SourceFile: filepath.ToSlash(rel),
	}

	if m := industryRe.FindStringSubmatch(content); m != nil {
		meta.Industry = m[1]
	}
	if m := sizeRe.FindStringSubmatch(content); m != nil {
		meta.CompanySize = document.ParseCompanySize(m[1])
	}
	if m := dealValueRe.FindStringSubmatch(content); m != nil {
		v, convErr := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if convErr == nil {
			meta.DealValue = v
		}
	}
	if m := outcomeRe.FindStringSubmatch(content); m != nil {
		meta.Outcome = document.ParseOutcome(m[1])
	}
	if m := tagsRe.FindStringSubmatch(content); m != nil {
		for _, tag := range strings.Split(m[1], ",") {
			if t := strings.TrimSpace(tag); t != "" {
				meta.Tags = append(meta.Tags, t)
			}
		}
	}

	return meta, nil
}
