package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/adalundhe/litindex/core/annotate"
	"github.com/adalundhe/litindex/core/bib"
	"github.com/adalundhe/litindex/core/corpus"
	"github.com/adalundhe/litindex/core/document"
	"github.com/adalundhe/litindex/core/query"
	"github.com/adalundhe/litindex/core/shard"
	"github.com/adalundhe/litindex/core/sidestore"
)

// AddFile ingests one structured-document file: the annotation pipeline
// produces the document, the writable shard receives it in all four
// physical sub-indices, and the side-store is updated for the new records.
// Files with no extractable text are skipped silently.
func (m *Manager) AddFile(ctx context.Context, path string) error {
	unlock, err := m.acquireMutationLock()
	if err != nil {
		return err
	}
	defer unlock()

	return m.addFileLocked(ctx, path)
}

// acquireMutationLock takes the per-root advisory lock that serializes
// mutations. The index is single-writer; a held lock fails fast instead of
// queueing.
func (m *Manager) acquireMutationLock() (func(), error) {
	ok, err := m.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !ok {
		return nil, ErrMutationInFlight
	}
	return func() { _ = m.lock.Unlock() }, nil
}

func (m *Manager) addFileLocked(ctx context.Context, path string) error {
	sd, err := m.pipeline.Produce(ctx, path)
	if err != nil {
		if errors.Is(err, annotate.ErrEmptyDocument) {
			m.logger.Info("skipping empty document", "path", path)
			return nil
		}
		return err
	}

	shardN, fresh, err := m.dir.EnsureWritableShard(m.cfg.MaxDocsPerShard)
	if err != nil {
		return err
	}
	if fresh {
		m.logger.Debug("writing first document of shard", "shard", shardN)
	}

	info := bib.Extract(sd.RawMarkup)
	subjects := sd.Subjects
	if info.Subject != "" {
		subjects = append(subjects, strings.Split(info.Subject, ", ")...)
	}
	corpora := corpus.Classify(subjects)
	membership := corpus.Encode(corpora)

	docFields, err := m.documentFields(sd, info, membership)
	if err != nil {
		return err
	}

	for _, sub := range []string{shard.SubFulltext, shard.SubFulltextCS} {
		h, err := m.dir.Handle(shardN, sub)
		if err != nil {
			return err
		}
		if err := h.Index(sd.Identifier, docFields); err != nil {
			return fmt.Errorf("index document %q: %w", sd.Identifier, err)
		}
	}

	if err := m.indexSentences(sd, shardN, membership); err != nil {
		return err
	}

	if err := m.side.PutDocumentYear(sd.Identifier, info.Year); err != nil {
		return err
	}
	sentenceRefs := make(map[string]sidestore.SentenceRef, len(sd.Sentences))
	for i := range sd.Sentences {
		key := document.SentenceKey(sd.Identifier, i)
		sentenceRefs[key] = sidestore.SentenceRef{DocID: sd.Identifier, Year: info.Year}
	}
	if err := m.side.PutSentences(sentenceRefs); err != nil {
		return err
	}

	m.cache.Clear()
	m.logger.Info("indexed document",
		"identifier", sd.Identifier, "shard", shardN,
		"sentences", len(sd.Sentences), "corpora", corpora)
	return nil
}

// documentFields assembles the engine field map for a document record:
// searchable plain fields plus compressed stored twins.
func (m *Manager) documentFields(sd *annotate.StructuredDocument, info bib.Info, membership string) (map[string]interface{}, error) {
	categories := strings.Join(sd.Categories, " ")

	plain := map[string]string{
		document.FieldFulltext:  sd.Fulltext,
		document.FieldTitle:     info.Title,
		document.FieldAuthor:    wrapExact(info.Author),
		document.FieldJournal:   wrapExact(info.Journal),
		document.FieldAbstract:  info.Abstract,
		document.FieldAccession: info.Accession,
		document.FieldType:      info.Type,
		document.FieldDocCat:    categories,
	}

	fields := map[string]interface{}{
		document.FieldIdentifier: sd.Identifier,
		document.FieldYear:       info.Year,
		document.FieldCorpus:     membership,
	}
	for name, value := range plain {
		fields[name] = value
		compressed, err := document.CompressField(rawFieldValue(name, value, info))
		if err != nil {
			return nil, err
		}
		fields[name+document.CompressedSuffix] = compressed
	}
	return fields, nil
}

// rawFieldValue picks the stored form of a content field. Author and
// journal are indexed with exact-match sentinels embedded but stored in
// their raw form.
func rawFieldValue(name, indexed string, info bib.Info) string {
	switch name {
	case document.FieldAuthor:
		return info.Author
	case document.FieldJournal:
		return info.Journal
	default:
		return indexed
	}
}

// wrapExact embeds each ", "-separated value in the exact-match sentinel
// markers so phrase queries can anchor against whole values.
func wrapExact(value string) string {
	if value == "" {
		return ""
	}
	parts := strings.Split(value, ", ")
	for i, p := range parts {
		parts[i] = query.ExactBegin + " " + p + " " + query.ExactEnd
	}
	return strings.Join(parts, " ")
}

// indexSentences commits a document's sentences to both case-variant
// sentence sub-indices in one batch each.
func (m *Manager) indexSentences(sd *annotate.StructuredDocument, shardN int, membership string) error {
	if len(sd.Sentences) == 0 {
		return nil
	}

	for _, sub := range []string{shard.SubSentence, shard.SubSentenceCS} {
		h, err := m.dir.Handle(shardN, sub)
		if err != nil {
			return err
		}

		batch := h.NewBatch()
		for i, span := range sd.Sentences {
			text := sd.SentenceText(span)
			cats := strings.Join(span.Categories, " ")

			textZip, err := document.CompressField(text)
			if err != nil {
				return err
			}
			catsZip, err := document.CompressField(cats)
			if err != nil {
				return err
			}

			fields := map[string]interface{}{
				document.FieldDocID:          sd.Identifier,
				document.FieldCorpus:         membership,
				document.FieldSentenceNumber: i,
				document.FieldBegin:          span.Begin,
				document.FieldEnd:            span.End,
				document.FieldSentence:       text,
				document.FieldSentCat:        cats,
				document.FieldSentence + document.CompressedSuffix: textZip,
				document.FieldSentCat + document.CompressedSuffix:  catsZip,
			}
			if err := batch.Index(document.SentenceKey(sd.Identifier, i), fields); err != nil {
				return fmt.Errorf("batch sentence %d of %q: %w", i, sd.Identifier, err)
			}
		}
		if err := h.Batch(batch); err != nil {
			return fmt.Errorf("commit sentences of %q: %w", sd.Identifier, err)
		}
	}
	return nil
}

// RemoveFile deletes a document and all of its sentences from both case
// variants of their sub-indices. The document's year is captured into the
// side-store first so year-sorted historical lookups keep working, and the
// sentences' side-store entries are rewritten to identifier-plus-year
// form.
func (m *Manager) RemoveFile(ctx context.Context, identifier string) error {
	unlock, err := m.acquireMutationLock()
	if err != nil {
		return err
	}
	defer unlock()

	year, known, err := m.captureYear(ctx, identifier)
	if err != nil {
		return err
	}
	if known {
		if err := m.side.PutDocumentYear(identifier, year); err != nil {
			return err
		}
	}

	for _, sub := range []string{shard.SubFulltext, shard.SubFulltextCS} {
		if err := m.deleteAcrossShards(identifier, sub); err != nil {
			return err
		}
	}

	sentenceKeys, err := m.locateSentences(ctx, identifier)
	if err != nil {
		return err
	}
	for _, sub := range []string{shard.SubSentence, shard.SubSentenceCS} {
		for _, key := range sentenceKeys {
			if err := m.deleteAcrossShards(key, sub); err != nil {
				return err
			}
		}
	}

	rewritten := make(map[string]sidestore.SentenceRef, len(sentenceKeys))
	for _, key := range sentenceKeys {
		rewritten[key] = sidestore.SentenceRef{DocID: identifier, Year: year}
	}
	if err := m.side.PutSentences(rewritten); err != nil {
		return err
	}

	m.cache.Clear()
	m.logger.Info("removed document",
		"identifier", identifier, "sentences", len(sentenceKeys))
	return nil
}

// captureYear reads the document's year from its stored field, falling
// back to the side-store for records already gone from the index. known
// reports whether the identifier was found at all; an identifier with no
// index record and no side-store row yields known=false so callers do not
// write entries for documents that never existed.
func (m *Manager) captureYear(ctx context.Context, identifier string) (year string, known bool, err error) {
	readers, err := m.dir.Subreaders(document.GranularityDocument, false)
	if err != nil {
		return "", false, err
	}
	if len(readers) > 0 {
		alias := bleve.NewIndexAlias(readers...)
		req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{identifier}))
		req.Size = 1
		req.Fields = []string{document.FieldYear}

		res, err := alias.SearchInContext(ctx, req)
		if err != nil {
			return "", false, fmt.Errorf("read year of %q: %w", identifier, err)
		}
		if len(res.Hits) > 0 {
			year, _ := res.Hits[0].Fields[document.FieldYear].(string)
			return year, true, nil
		}
	}

	return m.side.DocumentYear(identifier)
}

// locateSentences finds every sentence record of a document, via the
// engine with the side-store as a safety net for entries the engine no
// longer returns.
func (m *Manager) locateSentences(ctx context.Context, identifier string) ([]string, error) {
	keys := make(map[string]struct{})

	readers, err := m.dir.Subreaders(document.GranularitySentence, false)
	if err != nil {
		return nil, err
	}
	if len(readers) > 0 {
		alias := bleve.NewIndexAlias(readers...)
		tq := bleve.NewTermQuery(identifier)
		tq.SetField(document.FieldDocID)

		req := bleve.NewSearchRequestOptions(tq, m.cfg.MaxMatches, 0, false)
		res, err := alias.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("locate sentences of %q: %w", identifier, err)
		}
		for _, hit := range res.Hits {
			keys[hit.ID] = struct{}{}
		}
	}

	stored, err := m.side.SentenceKeysForDocument(identifier)
	if err != nil {
		return nil, err
	}
	for _, key := range stored {
		keys[key] = struct{}{}
	}

	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	return out, nil
}

// deleteAcrossShards marks a record deleted in the named sub-index of
// every shard. Deleting a key a shard never held is a no-op.
func (m *Manager) deleteAcrossShards(key, sub string) error {
	shards, err := m.dir.Shards()
	if err != nil {
		return err
	}
	for _, n := range shards {
		h, err := m.dir.Handle(n, sub)
		if err != nil {
			return err
		}
		if err := h.Delete(key); err != nil {
			return fmt.Errorf("delete %q from shard %d/%s: %w", key, n, sub, err)
		}
	}
	return nil
}

// CreateFromDirectory bulk-ingests a directory tree of pre-built
// structured-document files, applying the single-file path to every file
// matching the configured ingest glob, then recomputes the corpus counter.
func (m *Manager) CreateFromDirectory(ctx context.Context, dir string) error {
	unlock, err := m.acquireMutationLock()
	if err != nil {
		return err
	}
	defer unlock()

	var ingested, skipped int
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !m.ingestGlob.Match(d.Name()) {
			skipped++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.addFileLocked(ctx, path); err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		ingested++
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("bulk ingestion complete",
		"dir", dir, "ingested", ingested, "skipped", skipped)

	return m.recomputeCountsLocked(ctx)
}
