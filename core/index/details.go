package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"

	"github.com/adalundhe/litindex/core/corpus"
	"github.com/adalundhe/litindex/core/document"
)

// DetailOptions controls detail hydration.
type DetailOptions struct {
	SortByYear       bool
	IncludeSentences bool

	// IncludeFields and ExcludeFields project the loaded content fields:
	// (include - exclude) plus the always-required identifier and year.
	// An empty include list selects all content fields.
	IncludeFields []string
	ExcludeFields []string

	// CaseSensitive selects the physical sub-index to read from.
	CaseSensitive bool
}

// GetDocumentsDetails resolves full records for a batch of document
// summaries: stored fields are read in batches, compressed content is
// inflated, and corpus membership is parsed from its delimited field. A
// summary whose record has disappeared (a mutation between phases) yields
// an empty detail rather than an error. Summaries contributed by a
// federated instance are resolved against it and merged before the final
// ordering.
func (m *Manager) GetDocumentsDetails(ctx context.Context, summaries []document.DocumentSummary, opts DetailOptions) ([]document.DocumentDetails, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	var primary, federated []document.DocumentSummary
	for _, s := range summaries {
		if s.External {
			federated = append(federated, s)
		} else {
			primary = append(primary, s)
		}
	}

	details, err := m.resolveDetails(ctx, primary, opts)
	if err != nil {
		return nil, err
	}

	if len(federated) > 0 {
		external := m.externalInstance()
		if external == nil {
			return nil, fmt.Errorf("summaries reference a federated index but none is attached")
		}
		local := make([]document.DocumentSummary, len(federated))
		copy(local, federated)
		for i := range local {
			local[i].External = false
		}
		extDetails, err := external.resolveDetails(ctx, local, opts)
		if err != nil {
			return nil, err
		}
		for i := range extDetails {
			extDetails[i].External = true
		}
		details = append(details, extDetails...)
	}

	sortDetails(details, opts.SortByYear)
	return details, nil
}

// resolveDetails hydrates details against this instance only.
func (m *Manager) resolveDetails(ctx context.Context, summaries []document.DocumentSummary, opts DetailOptions) ([]document.DocumentDetails, error) {
	if len(summaries) == 0 {
		return nil, nil
	}

	projection := document.Project(opts.IncludeFields, opts.ExcludeFields)

	readers, err := m.dir.Subreaders(document.GranularityDocument, opts.CaseSensitive)
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return emptyDetails(summaries), nil
	}
	alias := bleve.NewIndexAlias(readers...)

	fields, err := m.fetchDocumentFields(ctx, alias, summaries, projection)
	if err != nil {
		return nil, err
	}

	details := make([]document.DocumentDetails, 0, len(summaries))
	for _, s := range summaries {
		detail := document.DocumentDetails{
			Document: document.Document{Identifier: s.Identifier, Score: s.Score},
			Match:    &document.MatchContext{Score: s.Score},
		}

		if hit, ok := fields[s.Identifier]; ok {
			doc, err := m.buildDocument(s.Identifier, hit, projection)
			if err != nil {
				return nil, err
			}
			doc.Score = s.Score
			detail.Document = doc
		}

		if opts.IncludeSentences && len(s.Sentences) > 0 {
			detail.Sentences, err = m.resolveSentenceDetails(ctx, s, opts.CaseSensitive)
			if err != nil {
				return nil, err
			}
		}

		details = append(details, detail)
	}
	return details, nil
}

// fetchDocumentFields reads the projected stored fields for all summaries.
// Summaries carrying an engine key take the direct record-fetch path;
// key-less summaries fall back to batched identifier queries. Both paths
// batch at the configured detail batch size to respect engine query-size
// limits.
func (m *Manager) fetchDocumentFields(ctx context.Context, alias bleve.IndexAlias, summaries []document.DocumentSummary, projection document.FieldSet) (map[string]map[string]interface{}, error) {
	stored := projection.Stored()
	fields := make(map[string]map[string]interface{}, len(summaries))

	var keyed, unkeyed []string
	for _, s := range summaries {
		if s.Key != "" {
			keyed = append(keyed, s.Key)
		} else {
			unkeyed = append(unkeyed, s.Identifier)
		}
	}

	for start := 0; start < len(keyed); start += m.cfg.DetailBatchSize {
		end := min(start+m.cfg.DetailBatchSize, len(keyed))
		batch := keyed[start:end]

		req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery(batch), len(batch), 0, false)
		req.Fields = stored
		res, err := alias.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch document details: %w", err)
		}
		for _, hit := range res.Hits {
			fields[hit.ID] = hit.Fields
		}
	}

	for start := 0; start < len(unkeyed); start += m.cfg.DetailBatchSize {
		end := min(start+m.cfg.DetailBatchSize, len(unkeyed))
		batch := unkeyed[start:end]

		disj := bleve.NewDisjunctionQuery()
		for _, id := range batch {
			tq := bleve.NewTermQuery(id)
			tq.SetField(document.FieldIdentifier)
			disj.AddQuery(tq)
		}
		req := bleve.NewSearchRequestOptions(disj, len(batch), 0, false)
		req.Fields = stored
		res, err := alias.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch document details by identifier: %w", err)
		}
		for _, hit := range res.Hits {
			fields[hit.ID] = hit.Fields
		}
	}

	return fields, nil
}

// buildDocument assembles a Document from stored fields, inflating each
// projected content field through the decompressed-field cache.
func (m *Manager) buildDocument(identifier string, fields map[string]interface{}, projection document.FieldSet) (document.Document, error) {
	doc := document.Document{Identifier: identifier}

	doc.Year = stringField(fields, document.FieldYear)
	doc.Corpora = corpus.Parse(stringField(fields, document.FieldCorpus))

	assign := map[string]*string{
		document.FieldFulltext:  &doc.Fulltext,
		document.FieldTitle:     &doc.Title,
		document.FieldAuthor:    &doc.Author,
		document.FieldJournal:   &doc.Journal,
		document.FieldAbstract:  &doc.Abstract,
		document.FieldAccession: &doc.Accession,
		document.FieldType:      &doc.Type,
		document.FieldDocCat:    &doc.Categories,
	}

	for field, target := range assign {
		if !projection.Contains(field) {
			continue
		}
		value, err := m.inflateField(identifier, field, fields)
		if err != nil {
			return doc, err
		}
		*target = value
	}
	return doc, nil
}

// inflateField decompresses one stored content field, memoizing through
// the field LRU.
func (m *Manager) inflateField(key, field string, fields map[string]interface{}) (string, error) {
	compressed := stringField(fields, field+document.CompressedSuffix)
	if compressed == "" {
		return "", nil
	}

	cacheKey := key + "\x00" + field
	if value, ok := m.fieldCache.Get(cacheKey); ok {
		return value, nil
	}

	value, err := document.DecompressField(compressed)
	if err != nil {
		return "", fmt.Errorf("inflate %s of %q: %w", field, key, err)
	}
	m.fieldCache.Add(cacheKey, value)
	return value, nil
}

// resolveSentenceDetails hydrates the matching sentences of one document.
// Lookups are batched and each batch is additionally constrained by the
// parent document identifier to avoid cross-document key collisions.
func (m *Manager) resolveSentenceDetails(ctx context.Context, summary document.DocumentSummary, caseSensitive bool) ([]document.SentenceDetails, error) {
	readers, err := m.dir.Subreaders(document.GranularitySentence, caseSensitive)
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return nil, nil
	}
	alias := bleve.NewIndexAlias(readers...)

	scores := make(map[int]float64, len(summary.Sentences))
	keys := make([]string, 0, len(summary.Sentences))
	for _, s := range summary.Sentences {
		scores[s.Number] = s.Score
		keys = append(keys, document.SentenceKey(summary.Identifier, s.Number))
	}

	var details []document.SentenceDetails
	for start := 0; start < len(keys); start += m.cfg.DetailBatchSize {
		end := min(start+m.cfg.DetailBatchSize, len(keys))
		batch := keys[start:end]

		parent := bleve.NewTermQuery(summary.Identifier)
		parent.SetField(document.FieldDocID)
		boolq := bleve.NewBooleanQuery()
		boolq.AddMust(bleve.NewDocIDQuery(batch))
		boolq.AddMust(parent)

		req := bleve.NewSearchRequestOptions(boolq, len(batch), 0, false)
		req.Fields = []string{
			document.FieldDocID,
			document.FieldSentenceNumber,
			document.FieldBegin,
			document.FieldEnd,
			document.FieldSentence + document.CompressedSuffix,
			document.FieldSentCat + document.CompressedSuffix,
		}

		res, err := alias.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch sentence details for %q: %w", summary.Identifier, err)
		}

		for _, hit := range res.Hits {
			number := intField(hit.Fields, document.FieldSentenceNumber)

			text, err := m.inflateField(hit.ID, document.FieldSentence, hit.Fields)
			if err != nil {
				return nil, err
			}
			cats, err := m.inflateField(hit.ID, document.FieldSentCat, hit.Fields)
			if err != nil {
				return nil, err
			}

			details = append(details, document.SentenceDetails{
				DocIdentifier: summary.Identifier,
				Number:        number,
				Begin:         intField(hit.Fields, document.FieldBegin),
				End:           intField(hit.Fields, document.FieldEnd),
				Text:          text,
				Categories:    cats,
				Score:         scores[number],
			})
		}
	}

	sort.Slice(details, func(i, j int) bool { return details[i].Number < details[j].Number })
	return details, nil
}

// emptyDetails maps summaries to empty details, used when no shard exists.
func emptyDetails(summaries []document.DocumentSummary) []document.DocumentDetails {
	details := make([]document.DocumentDetails, 0, len(summaries))
	for _, s := range summaries {
		details = append(details, document.DocumentDetails{
			Document: document.Document{Identifier: s.Identifier, Score: s.Score},
			Match:    &document.MatchContext{Score: s.Score},
		})
	}
	return details
}

// sortDetails orders details the same way search results are ordered.
func sortDetails(details []document.DocumentDetails, byYear bool) {
	if byYear {
		sort.SliceStable(details, func(i, j int) bool {
			if details[i].Year != details[j].Year {
				return details[i].Year > details[j].Year
			}
			return details[i].Score > details[j].Score
		})
		return
	}
	sort.SliceStable(details, func(i, j int) bool {
		return details[i].Score > details[j].Score
	})
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func intField(fields map[string]interface{}, key string) int {
	if v, ok := fields[key].(float64); ok {
		return int(v)
	}
	return 0
}
