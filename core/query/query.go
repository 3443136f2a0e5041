// Package query defines the structured search query and composes it into
// the engine's query form: a boolean query tree for execution plus the
// equivalent textual expression for logging and caching.
package query

import (
	"errors"

	"github.com/adalundhe/litindex/core/document"
)

var (
	// ErrMissingCorpusScope rejects a query with no corpus scope. A query
	// must always be scoped to at least one corpus unless it continues a
	// partial search whose match set is already resolved.
	ErrMissingCorpusScope = errors.New("query has no corpus scope")

	// ErrInvalidGranularity rejects a query targeting an unknown
	// granularity.
	ErrInvalidGranularity = errors.New("invalid query granularity")

	// ErrQuerySyntax indicates the engine rejected the composed keyword
	// expression.
	ErrQuerySyntax = errors.New("query syntax error")
)

// Field is one optional query filter value. Exact forces substring-anchored
// matching by wrapping the value in the begin/end sentinel markers that the
// indexer embeds in the field content.
type Field struct {
	Value string
	Exact bool
}

// IsZero reports whether the field carries no value.
func (f Field) IsZero() bool { return f.Value == "" }

// Query is a structured search request.
type Query struct {
	Granularity document.Granularity

	// Keyword is the free-text search expression against the target
	// content field. ExcludeKeyword removes matching records.
	Keyword        string
	ExcludeKeyword string

	Year      Field
	Author    Field
	Journal   Field
	Type      Field
	Accession Field

	// CaseSensitive selects the case-preserving physical sub-index.
	CaseSensitive bool

	// Corpora scopes the query. Mandatory unless the caller continues a
	// partial search.
	Corpora []string

	// Categories filters on category annotations; CategoriesAnd selects
	// conjunctive instead of disjunctive combination.
	Categories    []string
	CategoriesAnd bool

	// SortByYear orders results by year descending, score breaking ties,
	// instead of plain score order.
	SortByYear bool
}

// TargetField is the physical content field this query searches.
func (q Query) TargetField() string {
	if q.Granularity == document.GranularitySentence {
		return document.FieldSentence
	}
	return document.FieldFulltext
}

// CategoryField is the physical category-annotation field for this query's
// granularity.
func (q Query) CategoryField() string {
	if q.Granularity == document.GranularitySentence {
		return document.FieldSentCat
	}
	return document.FieldDocCat
}
