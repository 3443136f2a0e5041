// Package annotate defines the annotation-pipeline collaborator: the step
// that turns a raw structured-document file into an in-memory document with
// sentence boundaries and category annotations, ready for indexing. The
// pipeline itself (tokenization, sentence splitting, category tagging) is
// external; this package only fixes the contract and ships a reader for
// pre-built structured-document files.
package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyDocument signals that a file produced no extracted text and
// should be skipped rather than treated as a failure.
var ErrEmptyDocument = errors.New("document has no extracted text")

// SentenceSpan is one sentence boundary into the parent's full text, with
// its category annotations.
type SentenceSpan struct {
	Begin      int      `json:"begin"`
	End        int      `json:"end"`
	Categories []string `json:"categories,omitempty"`
}

// StructuredDocument is the pipeline's output: everything the indexer
// needs to commit a document and its sentences.
type StructuredDocument struct {
	Identifier string         `json:"identifier"`
	Fulltext   string         `json:"fulltext"`
	RawMarkup  string         `json:"raw_markup,omitempty"`
	Sentences  []SentenceSpan `json:"sentences,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Subjects   []string       `json:"subjects,omitempty"`
}

// SentenceText slices the sentence's text out of the full text. Spans that
// fall outside the text yield "".
func (d *StructuredDocument) SentenceText(span SentenceSpan) string {
	if span.Begin < 0 || span.End > len(d.Fulltext) || span.Begin >= span.End {
		return ""
	}
	return d.Fulltext[span.Begin:span.End]
}

// Pipeline produces a structured document from a raw file. Implementations
// return ErrEmptyDocument (possibly wrapped) for files with no extractable
// text.
type Pipeline interface {
	Produce(ctx context.Context, path string) (*StructuredDocument, error)
}

// FilePipeline reads pre-built structured-document files (JSON). It is the
// default Pipeline for bulk ingestion from a directory of already-annotated
// documents.
type FilePipeline struct{}

// Produce reads and validates one structured-document file.
func (FilePipeline) Produce(ctx context.Context, path string) (*StructuredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read structured document: %w", err)
	}

	var doc StructuredDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse structured document %s: %w", path, err)
	}

	if doc.Identifier == "" {
		base := filepath.Base(path)
		doc.Identifier = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if strings.TrimSpace(doc.Fulltext) == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyDocument)
	}

	for i, span := range doc.Sentences {
		if span.Begin < 0 || span.End > len(doc.Fulltext) || span.Begin >= span.End {
			return nil, fmt.Errorf("structured document %s: sentence %d has invalid bounds [%d,%d)",
				path, i, span.Begin, span.End)
		}
	}

	return &doc, nil
}
