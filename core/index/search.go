package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"

	"github.com/adalundhe/litindex/core/document"
	"github.com/adalundhe/litindex/core/query"
)

// scoredHit is one engine match: record key plus relevance score.
type scoredHit struct {
	key   string
	score float64
}

// MatchSet is the opaque continuation token of a partial search: the
// resolved but not yet hydrated match set. Tokens are bound to the shard
// layout they were resolved against and go stale when it changes. A
// federated search carries the secondary instance's match set alongside.
type MatchSet struct {
	id            uuid.UUID
	granularity   document.Granularity
	caseSensitive bool
	sortByYear    bool
	generation    uint64
	hits          []scoredHit

	external *MatchSet
}

// ID returns the token's opaque handle.
func (t *MatchSet) ID() string { return t.id.String() }

// Size returns the match-set cardinality, including a federated secondary's
// matches.
func (t *MatchSet) Size() int {
	if t == nil {
		return 0
	}
	return len(t.hits) + t.external.Size()
}

// SearchOptions controls search execution.
type SearchOptions struct {
	// MatchesOnly stops after match-set resolution and returns the
	// continuation token without hydrating summaries, letting the caller
	// learn the match set's size cheaply.
	MatchesOnly bool

	// Identifiers intersects the search with a known document identifier
	// set.
	Identifiers []string

	// Token continues a previously resolved partial search; the query's
	// corpus scope is not required in that case.
	Token *MatchSet
}

// SearchResult is the outcome of a search.
type SearchResult struct {
	Query          query.Query
	Summaries      []document.DocumentSummary
	TotalSentences int
	MaxScore       float64
	MinScore       float64

	// Token is set for partial (matches-only) searches.
	Token *MatchSet
}

// Search runs the two-phase query protocol: resolve the match set, then
// hydrate summaries unless opts.MatchesOnly is set. Supplying opts.Token
// skips resolution and hydrates the token's match set instead.
func (m *Manager) Search(ctx context.Context, q query.Query, opts SearchOptions) (*SearchResult, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	if opts.Token != nil {
		return m.hydrateResult(ctx, q, opts.Token)
	}

	composed, err := query.Compose(q)
	if err != nil {
		return nil, err
	}

	cacheKey := ""
	external := m.externalInstance()
	if !opts.MatchesOnly && len(opts.Identifiers) == 0 {
		cacheKey = resultCacheKey(composed, q, external != nil)
		if cached, ok := m.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	token, err := m.resolve(ctx, q, composed, opts.Identifiers)
	if err != nil {
		return nil, err
	}

	if external != nil {
		token.external, err = external.resolve(ctx, q, composed, opts.Identifiers)
		if err != nil {
			return nil, err
		}
	}

	if opts.MatchesOnly {
		return &SearchResult{Query: q, Token: token}, nil
	}

	result, err := m.hydrateResult(ctx, q, token)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		m.cache.Set(cacheKey, result)
	}
	return result, nil
}

func resultCacheKey(composed *query.Composed, q query.Query, federated bool) string {
	return fmt.Sprintf("%s|%s|cs=%t|year=%t|fed=%t",
		q.Granularity, composed.Text, q.CaseSensitive, q.SortByYear, federated)
}

// resolve executes phase 1: the union search across scoped shards,
// producing the scored match collection.
func (m *Manager) resolve(ctx context.Context, q query.Query, composed *query.Composed, identifiers []string) (*MatchSet, error) {
	token := &MatchSet{
		id:            uuid.New(),
		granularity:   q.Granularity,
		caseSensitive: q.CaseSensitive,
		sortByYear:    q.SortByYear,
		generation:    m.dir.Generation(),
	}

	readers, err := m.dir.Subreaders(q.Granularity, q.CaseSensitive)
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return token, nil
	}

	engineQuery := composed.Query
	if len(identifiers) > 0 {
		field := document.FieldIdentifier
		if q.Granularity == document.GranularitySentence {
			field = document.FieldDocID
		}
		boolq := bleve.NewBooleanQuery()
		boolq.AddMust(engineQuery)
		boolq.AddMust(query.IdentifierFilter(field, identifiers))
		engineQuery = boolq
	}

	alias := bleve.NewIndexAlias(readers...)
	req := bleve.NewSearchRequestOptions(engineQuery, m.cfg.MaxMatches, 0, false)

	res, err := alias.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute query %q: %w", composed.Text, err)
	}

	token.generation = m.dir.Generation()
	token.hits = make([]scoredHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		token.hits = append(token.hits, scoredHit{key: hit.ID, score: hit.Score})
	}

	m.logger.Debug("resolved match set",
		"query", composed.Text, "granularity", q.Granularity, "matches", len(token.hits))
	return token, nil
}

// hydrateResult executes phase 2 for a match set, merging a federated
// secondary's summaries before final ordering.
func (m *Manager) hydrateResult(ctx context.Context, q query.Query, token *MatchSet) (*SearchResult, error) {
	summaries, err := m.hydrate(ctx, token)
	if err != nil {
		return nil, err
	}

	if token.external != nil {
		external := m.externalInstance()
		if external == nil {
			return nil, fmt.Errorf("token carries a federated match set but no external index is attached")
		}
		extSummaries, err := external.hydrate(ctx, token.external)
		if err != nil {
			return nil, err
		}
		for i := range extSummaries {
			extSummaries[i].External = true
		}
		summaries = append(summaries, extSummaries...)
	}

	sortSummaries(summaries, token.sortByYear)

	result := &SearchResult{
		Query:     q,
		Summaries: summaries,
	}
	for _, s := range summaries {
		result.TotalSentences += len(s.Sentences)
	}
	result.MaxScore, result.MinScore = scanScores(summaries)
	return result, nil
}

// hydrate turns a match set into document summaries using the lazy or bulk
// strategy selected by result-set size.
func (m *Manager) hydrate(ctx context.Context, token *MatchSet) ([]document.DocumentSummary, error) {
	if token.generation != m.dir.Generation() {
		return nil, ErrStaleToken
	}
	if len(token.hits) == 0 {
		return nil, nil
	}

	if token.granularity == document.GranularitySentence {
		return m.hydrateSentences(token)
	}
	return m.hydrateDocuments(ctx, token)
}

// hydrateDocuments builds document summaries. The record key is the stable
// identifier, so only the year needs resolving, and only when sorting by
// year: below the bulk threshold each record's stored year is read
// individually with a field selector restricted to the year; at or above
// it, one batched side-store read covers the whole match set.
func (m *Manager) hydrateDocuments(ctx context.Context, token *MatchSet) ([]document.DocumentSummary, error) {
	var years map[string]string
	if token.sortByYear {
		var err error
		if len(token.hits) >= m.cfg.BulkHydrateThreshold {
			years, err = m.bulkDocumentYears(token)
		} else {
			years, err = m.lazyDocumentYears(ctx, token)
		}
		if err != nil {
			return nil, err
		}
	}

	summaries := make([]document.DocumentSummary, 0, len(token.hits))
	for _, hit := range token.hits {
		summaries = append(summaries, document.DocumentSummary{
			Identifier: hit.key,
			Key:        hit.key,
			Year:       years[hit.key],
			Score:      hit.score,
		})
	}
	return summaries, nil
}

// lazyDocumentYears reads each matched record's stored year individually.
func (m *Manager) lazyDocumentYears(ctx context.Context, token *MatchSet) (map[string]string, error) {
	readers, err := m.dir.Subreaders(document.GranularityDocument, token.caseSensitive)
	if err != nil {
		return nil, err
	}
	alias := bleve.NewIndexAlias(readers...)

	years := make(map[string]string, len(token.hits))
	for _, hit := range token.hits {
		req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{hit.key}))
		req.Size = 1
		req.Fields = []string{document.FieldYear}

		res, err := alias.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("read year for %q: %w", hit.key, err)
		}
		if len(res.Hits) == 0 {
			continue
		}
		if year, ok := res.Hits[0].Fields[document.FieldYear].(string); ok {
			years[hit.key] = year
		}
	}
	return years, nil
}

// bulkDocumentYears loads years for the whole match set from the
// side-store in one batched read.
func (m *Manager) bulkDocumentYears(token *MatchSet) (map[string]string, error) {
	keys := make([]string, len(token.hits))
	for i, hit := range token.hits {
		keys[i] = hit.key
	}
	return m.side.DocumentYears(keys)
}

// hydrateSentences groups sentence matches by parent document: the first
// sentence seen claims the summary's identifier and year, later sentences
// accumulate into its nested list, and the document score is the sum of
// its sentences' scores. Parent identifiers and years come from the
// side-store in one batched read.
func (m *Manager) hydrateSentences(token *MatchSet) ([]document.DocumentSummary, error) {
	keys := make([]string, len(token.hits))
	for i, hit := range token.hits {
		keys[i] = hit.key
	}
	refs, err := m.side.Sentences(keys)
	if err != nil {
		return nil, err
	}

	byDoc := make(map[string]*document.DocumentSummary)
	var order []string

	for _, hit := range token.hits {
		docID, number, ok := document.ParseSentenceKey(hit.key)
		if !ok {
			m.logger.Warn("skipping malformed sentence key", "key", hit.key)
			continue
		}
		ref, haveRef := refs[hit.key]
		if haveRef {
			docID = ref.DocID
		}

		summary, seen := byDoc[docID]
		if !seen {
			summary = &document.DocumentSummary{
				Identifier: docID,
				Key:        docID,
				Year:       ref.Year,
			}
			byDoc[docID] = summary
			order = append(order, docID)
		}

		summary.Score += hit.score
		summary.Sentences = append(summary.Sentences, document.SentenceSummary{
			DocIdentifier: docID,
			Number:        number,
			Score:         hit.score,
		})
	}

	summaries := make([]document.DocumentSummary, 0, len(order))
	for _, docID := range order {
		summaries = append(summaries, *byDoc[docID])
	}
	return summaries, nil
}

// sortSummaries applies the final ordering: year descending with score
// breaking ties when sorting by year, otherwise score descending with the
// engine's iteration order left stable.
func sortSummaries(summaries []document.DocumentSummary, byYear bool) {
	if byYear {
		sort.SliceStable(summaries, func(i, j int) bool {
			if summaries[i].Year != summaries[j].Year {
				return summaries[i].Year > summaries[j].Year
			}
			return summaries[i].Score > summaries[j].Score
		})
		return
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Score > summaries[j].Score
	})
}

// scanScores computes the result-wide max and min scores.
func scanScores(summaries []document.DocumentSummary) (max, min float64) {
	if len(summaries) == 0 {
		return 0, 0
	}
	max, min = summaries[0].Score, summaries[0].Score
	for _, s := range summaries[1:] {
		if s.Score > max {
			max = s.Score
		}
		if s.Score < min {
			min = s.Score
		}
	}
	return max, min
}
