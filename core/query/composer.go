package query

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/adalundhe/litindex/core/corpus"
	"github.com/adalundhe/litindex/core/document"
)

// Exact-match sentinel markers. The indexer wraps author and journal values
// in these markers inside the field content, so a phrase query for the
// wrapped value anchors the match to a whole embedded value instead of a
// bare substring.
const (
	ExactBegin = "BEGIN"
	ExactEnd   = "END"
)

// engineReserved are the characters with meaning in the engine's query
// syntax. Field values are escaped before they are rendered into the
// textual expression.
const engineReserved = `+-=&|><!(){}[]^"~*?:\/`

// Composed is the engine form of a Query: the executable query tree, its
// textual rendering, and the physical content field being searched.
type Composed struct {
	Query blevequery.Query
	Text  string
	Field string
}

// Compose turns a structured Query into its engine form. It fails with
// ErrMissingCorpusScope when the query carries no corpus scope and with
// ErrQuerySyntax when the keyword expression does not parse.
func Compose(q Query) (*Composed, error) {
	if !q.Granularity.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, q.Granularity)
	}
	if len(q.Corpora) == 0 {
		return nil, ErrMissingCorpusScope
	}

	boolq := bleve.NewBooleanQuery()
	var clauses []string

	if q.Keyword != "" {
		kw, err := parseKeyword(q.Keyword)
		if err != nil {
			return nil, err
		}
		boolq.AddMust(kw)
		clauses = append(clauses, fmt.Sprintf("%s:(%s)", q.TargetField(), q.Keyword))
	}

	if q.ExcludeKeyword != "" {
		kw, err := parseKeyword(q.ExcludeKeyword)
		if err != nil {
			return nil, err
		}
		boolq.AddMustNot(kw)
		clauses = append(clauses, fmt.Sprintf("NOT %s:(%s)", q.TargetField(), q.ExcludeKeyword))
	}

	if !q.Year.IsZero() {
		tq := bleve.NewTermQuery(q.Year.Value)
		tq.SetField(document.FieldYear)
		boolq.AddMust(tq)
		clauses = append(clauses, document.FieldYear+":"+Escape(q.Year.Value))
	}

	if !q.Author.IsZero() {
		sub, text := fieldClause(document.FieldAuthor, q.Author)
		boolq.AddMust(sub)
		clauses = append(clauses, text)
	}

	if !q.Journal.IsZero() {
		sub, text := fieldClause(document.FieldJournal, q.Journal)
		boolq.AddMust(sub)
		clauses = append(clauses, text)
	}

	if !q.Type.IsZero() {
		mq := bleve.NewMatchQuery(q.Type.Value)
		mq.SetField(document.FieldType)
		boolq.AddMust(mq)
		clauses = append(clauses, document.FieldType+":"+Escape(q.Type.Value))
	}

	if !q.Accession.IsZero() {
		sub, text := accessionClause(q.Accession.Value)
		boolq.AddMust(sub)
		clauses = append(clauses, text)
	}

	if len(q.Categories) > 0 {
		sub, text := categoryClause(q.CategoryField(), q.Categories, q.CategoriesAnd)
		boolq.AddMust(sub)
		clauses = append(clauses, text)
	}

	scoped, text := scopeToCorpora(boolq, clauses, q.Corpora)

	return &Composed{
		Query: scoped,
		Text:  text,
		Field: q.TargetField(),
	}, nil
}

// parseKeyword runs the free-text expression through the engine's query
// string parser so malformed syntax is rejected before execution.
func parseKeyword(keyword string) (blevequery.Query, error) {
	qs := bleve.NewQueryStringQuery(keyword)
	parsed, err := qs.Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuerySyntax, err)
	}
	return parsed, nil
}

// fieldClause builds the clause for an author/journal filter. Exact match
// strips embedded quotes from the value and wraps it in the sentinel
// markers, forcing the phrase to anchor against a whole embedded value.
func fieldClause(field string, f Field) (blevequery.Query, string) {
	if !f.Exact {
		mq := bleve.NewMatchQuery(f.Value)
		mq.SetField(field)
		return mq, field + ":" + Escape(f.Value)
	}

	value := strings.ReplaceAll(f.Value, `"`, "")
	wrapped := ExactBegin + " " + value + " " + ExactEnd
	pq := bleve.NewMatchPhraseQuery(wrapped)
	pq.SetField(field)
	return pq, fmt.Sprintf("%s:%q", field, wrapped)
}

// accessionClause splits the accession value on whitespace and joins the
// tokens with OR: a query listing several accession numbers matches any of
// them.
func accessionClause(value string) (blevequery.Query, string) {
	tokens := strings.Fields(value)
	texts := make([]string, 0, len(tokens))

	disj := bleve.NewDisjunctionQuery()
	for _, tok := range tokens {
		mq := bleve.NewMatchQuery(tok)
		mq.SetField(document.FieldAccession)
		disj.AddQuery(mq)
		texts = append(texts, document.FieldAccession+":"+Escape(tok))
	}

	if len(tokens) == 1 {
		return disj, texts[0]
	}
	return disj, "(" + strings.Join(texts, " OR ") + ")"
}

// categoryClause renders the category filter as a parenthesized group of
// per-category clauses, OR- or AND-combined.
func categoryClause(field string, categories []string, conjunctive bool) (blevequery.Query, string) {
	texts := make([]string, 0, len(categories))
	subs := make([]blevequery.Query, 0, len(categories))

	for _, cat := range categories {
		pq := bleve.NewMatchPhraseQuery(cat)
		pq.SetField(field)
		subs = append(subs, pq)
		texts = append(texts, fmt.Sprintf("%s:%q", field, cat))
	}

	if conjunctive {
		conj := bleve.NewConjunctionQuery(subs...)
		return conj, "(" + strings.Join(texts, " AND ") + ")"
	}
	disj := bleve.NewDisjunctionQuery(subs...)
	return disj, "(" + strings.Join(texts, " OR ") + ")"
}

// scopeToCorpora wraps the composed query with the corpus scope:
// (corpus:"BG<c1>ED" OR corpus:"BG<c2>ED" ...) AND (<composed>).
func scopeToCorpora(inner *blevequery.BooleanQuery, clauses, corpora []string) (blevequery.Query, string) {
	scope := bleve.NewDisjunctionQuery()
	texts := make([]string, 0, len(corpora))
	for _, c := range corpora {
		wrapped := corpus.Wrap(c)
		pq := bleve.NewMatchPhraseQuery(wrapped)
		pq.SetField(document.FieldCorpus)
		scope.AddQuery(pq)
		texts = append(texts, fmt.Sprintf("%s:%q", document.FieldCorpus, wrapped))
	}

	composed := strings.Join(clauses, " AND ")
	text := "(" + strings.Join(texts, " OR ") + ")"
	if composed != "" {
		text += " AND (" + composed + ")"
	}

	// A scope-only query has no inner clauses to satisfy.
	if len(clauses) == 0 {
		return scope, text
	}

	scoped := bleve.NewBooleanQuery()
	scoped.AddMust(scope)
	scoped.AddMust(inner)
	return scoped, text
}

// IdentifierFilter builds a non-analyzed identifier-set constraint over
// the given field, used to intersect a search with a known set of document
// identifiers. Document records filter on the identifier field, sentence
// records on their parent doc_id field.
func IdentifierFilter(field string, identifiers []string) blevequery.Query {
	disj := bleve.NewDisjunctionQuery()
	for _, id := range identifiers {
		tq := bleve.NewTermQuery(id)
		tq.SetField(field)
		disj.AddQuery(tq)
	}
	return disj
}

// Escape backslash-escapes the engine's reserved characters in a field
// value.
func Escape(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if strings.ContainsRune(engineReserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
