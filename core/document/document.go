// Package document defines the record types stored in the literature index:
// documents and their sentences, plus the summary and detail views produced
// by searches. Summary and detail are modeled by composition rather than
// inheritance: DocumentDetails embeds a Document and carries an optional
// MatchContext.
package document

import "fmt"

// Granularity selects whether an operation targets documents or sentences.
type Granularity string

const (
	// GranularityDocument targets whole-document records.
	GranularityDocument Granularity = "document"

	// GranularitySentence targets per-sentence records.
	GranularitySentence Granularity = "sentence"
)

// IsValid reports whether g is a known granularity.
func (g Granularity) IsValid() bool {
	return g == GranularityDocument || g == GranularitySentence
}

// Physical field names shared by the index sub-indices, the query composer
// and the hydrators.
const (
	FieldIdentifier = "identifier"
	FieldYear       = "year"
	FieldCorpus     = "corpus"
	FieldFulltext   = "fulltext"
	FieldTitle      = "title"
	FieldAuthor     = "author"
	FieldJournal    = "journal"
	FieldAbstract   = "abstract"
	FieldAccession  = "accession"
	FieldType       = "type"
	FieldDocCat     = "doc_cat"

	FieldSentence       = "sentence"
	FieldSentCat        = "sent_cat"
	FieldDocID          = "doc_id"
	FieldSentenceNumber = "sentence_number"
	FieldBegin          = "begin"
	FieldEnd            = "end"
)

// CompressedSuffix is appended to a field name to address its stored-only
// compressed twin. Content fields are indexed as plain text for search but
// stored compressed to keep the index small; detail hydration reads the
// compressed twin and inflates it.
const CompressedSuffix = "_zip"

// ContentFields lists the document fields that carry a compressed stored twin.
var ContentFields = []string{
	FieldFulltext,
	FieldTitle,
	FieldAuthor,
	FieldJournal,
	FieldAbstract,
	FieldAccession,
	FieldType,
	FieldDocCat,
}

// SentenceContentFields lists the sentence fields with a compressed twin.
var SentenceContentFields = []string{
	FieldSentence,
	FieldSentCat,
}

// Document is a fully hydrated document record. Identifier is the stable
// key; the per-shard engine key is derived from it. Score is query-time
// state and is never persisted.
type Document struct {
	Identifier string
	Year       string
	Score      float64
	Corpora    []string

	Fulltext   string
	Title      string
	Author     string
	Journal    string
	Abstract   string
	Accession  string
	Type       string
	Categories string
}

// SentenceSummary is the per-sentence slice of a search result. Text and
// category content are only filled in by detail hydration.
type SentenceSummary struct {
	DocIdentifier string
	Number        int
	Score         float64
}

// DocumentSummary is the per-document slice of a search result. For
// sentence-granularity searches the matching sentences are nested and the
// document score is the sum of its sentence scores.
type DocumentSummary struct {
	Identifier string
	Year       string
	Score      float64

	// Key is the engine-internal record key when known. A summary without
	// a key can still be hydrated via the slower identifier lookup path.
	Key string

	Sentences []SentenceSummary

	// External marks summaries contributed by a federated index instance.
	External bool
}

// MatchContext carries query-time relevance state alongside a hydrated
// record.
type MatchContext struct {
	Score float64
}

// SentenceDetails is a fully hydrated sentence record.
type SentenceDetails struct {
	DocIdentifier string
	Number        int
	Begin         int
	End           int
	Text          string
	Categories    string
	Score         float64
}

// DocumentDetails is a fully hydrated document plus optional query-time
// match state and, when requested, its matching sentences.
type DocumentDetails struct {
	Document

	Match     *MatchContext
	Sentences []SentenceDetails

	// External marks details contributed by a federated index instance.
	External bool
}

// SentenceKey derives the engine record key for a sentence from its parent
// document identifier and sequence number. Keys sort lexicographically in
// sentence order within a document.
func SentenceKey(docIdentifier string, number int) string {
	return fmt.Sprintf("%s#%06d", docIdentifier, number)
}

// ParseSentenceKey splits a sentence record key back into its parent
// identifier and sequence number. Returns ok=false for malformed keys.
func ParseSentenceKey(key string) (docIdentifier string, number int, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '#' {
			var n int
			if _, err := fmt.Sscanf(key[i+1:], "%d", &n); err != nil {
				return "", 0, false
			}
			return key[:i], n, true
		}
	}
	return "", 0, false
}
