package index

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"

	"github.com/adalundhe/litindex/core/document"
	"github.com/adalundhe/litindex/core/sidestore"
)

// backfillPageSize bounds one page of a full-index scan during backfill.
const backfillPageSize = 10_000

// RebuildSideStore repopulates the side-store from the live index: one pass
// over every document record for years, one over every sentence record for
// parent joins. Used when the side-store is lost or an index predates it.
func (m *Manager) RebuildSideStore(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}

	unlock, err := m.acquireMutationLock()
	if err != nil {
		return err
	}
	defer unlock()

	docs, err := m.backfillDocuments(ctx)
	if err != nil {
		return err
	}
	sentences, err := m.backfillSentences(ctx)
	if err != nil {
		return err
	}

	m.logger.Info("side-store rebuilt", "documents", docs, "sentences", sentences)
	return nil
}

func (m *Manager) backfillDocuments(ctx context.Context) (int, error) {
	readers, err := m.dir.Subreaders(document.GranularityDocument, false)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, reader := range readers {
		err := m.scanAll(ctx, reader, []string{document.FieldYear}, func(key string, fields map[string]interface{}) error {
			year, _ := fields[document.FieldYear].(string)
			total++
			return m.side.PutDocumentYear(key, year)
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (m *Manager) backfillSentences(ctx context.Context) (int, error) {
	readers, err := m.dir.Subreaders(document.GranularitySentence, false)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, reader := range readers {
		batch := make(map[string]sidestore.SentenceRef, backfillPageSize)
		err := m.scanAll(ctx, reader, []string{document.FieldDocID}, func(key string, fields map[string]interface{}) error {
			docID, _ := fields[document.FieldDocID].(string)
			if docID == "" {
				if parsed, _, ok := document.ParseSentenceKey(key); ok {
					docID = parsed
				}
			}
			year, _, err := m.side.DocumentYear(docID)
			if err != nil {
				return err
			}
			batch[key] = sidestore.SentenceRef{DocID: docID, Year: year}
			total++
			if len(batch) >= backfillPageSize {
				if err := m.side.PutSentences(batch); err != nil {
					return err
				}
				batch = make(map[string]sidestore.SentenceRef, backfillPageSize)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		if err := m.side.PutSentences(batch); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// scanAll pages a match-all query through one sub-index, invoking visit for
// every record.
func (m *Manager) scanAll(ctx context.Context, reader bleve.Index, fields []string, visit func(key string, fields map[string]interface{}) error) error {
	for from := 0; ; from += backfillPageSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), backfillPageSize, from, false)
		req.Fields = fields

		res, err := reader.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		for _, hit := range res.Hits {
			if err := visit(hit.ID, hit.Fields); err != nil {
				return err
			}
		}
		if len(res.Hits) < backfillPageSize {
			return nil
		}
	}
}
