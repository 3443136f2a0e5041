package shard

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/adalundhe/litindex/core/document"
)

// buildMapping constructs the index mapping for one physical sub-index.
// The case-insensitive variants analyze text with the standard analyzer,
// the case-sensitive ones with the case-preserving analyzer. Content
// fields are indexed in clear but not stored; their compressed twins are
// stored but not indexed.
func buildMapping(granularity document.Granularity, caseSensitive bool) mapping.IndexMapping {
	textAnalyzer := standard.Name
	if caseSensitive {
		textAnalyzer = CaseSensitiveAnalyzerName
	}

	dm := bleve.NewDocumentStaticMapping()

	switch granularity {
	case document.GranularitySentence:
		addSentenceFields(dm, textAnalyzer)
	default:
		addDocumentFields(dm, textAnalyzer)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = dm
	im.DefaultAnalyzer = textAnalyzer
	im.DefaultField = targetField(granularity)
	return im
}

func targetField(granularity document.Granularity) string {
	if granularity == document.GranularitySentence {
		return document.FieldSentence
	}
	return document.FieldFulltext
}

func addDocumentFields(dm *mapping.DocumentMapping, textAnalyzer string) {
	dm.AddFieldMappingsAt(document.FieldIdentifier, keywordField(true))
	dm.AddFieldMappingsAt(document.FieldYear, keywordField(true))
	dm.AddFieldMappingsAt(document.FieldCorpus, textField(textAnalyzer, true))

	dm.AddFieldMappingsAt(document.FieldFulltext, textField(textAnalyzer, false))
	dm.AddFieldMappingsAt(document.FieldTitle, textField(textAnalyzer, false))
	dm.AddFieldMappingsAt(document.FieldAuthor, textField(textAnalyzer, false))
	dm.AddFieldMappingsAt(document.FieldJournal, textField(textAnalyzer, false))
	dm.AddFieldMappingsAt(document.FieldAbstract, textField(textAnalyzer, false))
	dm.AddFieldMappingsAt(document.FieldAccession, textField(standard.Name, false))
	dm.AddFieldMappingsAt(document.FieldType, keywordField(false))
	dm.AddFieldMappingsAt(document.FieldDocCat, textField(textAnalyzer, false))

	for _, f := range document.ContentFields {
		dm.AddFieldMappingsAt(f+document.CompressedSuffix, storedOnlyField())
	}
}

func addSentenceFields(dm *mapping.DocumentMapping, textAnalyzer string) {
	dm.AddFieldMappingsAt(document.FieldDocID, keywordField(true))
	dm.AddFieldMappingsAt(document.FieldCorpus, textField(textAnalyzer, false))
	dm.AddFieldMappingsAt(document.FieldSentenceNumber, numericField())
	dm.AddFieldMappingsAt(document.FieldBegin, numericField())
	dm.AddFieldMappingsAt(document.FieldEnd, numericField())

	dm.AddFieldMappingsAt(document.FieldSentence, textField(textAnalyzer, false))
	dm.AddFieldMappingsAt(document.FieldSentCat, textField(textAnalyzer, false))

	for _, f := range document.SentenceContentFields {
		dm.AddFieldMappingsAt(f+document.CompressedSuffix, storedOnlyField())
	}
}

func keywordField(store bool) *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = keyword.Name
	fm.Store = store
	fm.IncludeInAll = false
	fm.IncludeTermVectors = false
	return fm
}

func textField(analyzer string, store bool) *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = analyzer
	fm.Store = store
	fm.IncludeInAll = false
	return fm
}

func storedOnlyField() *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Index = false
	fm.Store = true
	fm.IncludeInAll = false
	fm.IncludeTermVectors = false
	return fm
}

func numericField() *mapping.FieldMapping {
	fm := bleve.NewNumericFieldMapping()
	fm.Store = true
	fm.IncludeInAll = false
	return fm
}
