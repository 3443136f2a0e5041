// Package shard manages the physical layout of the index: numbered shard
// directories, the four engine sub-indices inside each shard, the cached
// reader handles, and the document-count rollover policy.
package shard

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"

	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// CaseSensitiveAnalyzerName is the analyzer used by the case-preserving
// sub-indices: unicode tokenization with no lowercase filter.
const CaseSensitiveAnalyzerName = "case_exact"

func init() {
	registry.RegisterAnalyzer(CaseSensitiveAnalyzerName, newCaseSensitiveAnalyzer)
}

func newCaseSensitiveAnalyzer(
	config map[string]interface{},
	cache *registry.Cache,
) (analysis.Analyzer, error) {
	tokenizer, err := cache.TokenizerNamed(unicode.Name)
	if err != nil {
		return nil, err
	}

	return &analysis.DefaultAnalyzer{
		Tokenizer: tokenizer,
	}, nil
}
