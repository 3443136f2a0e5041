package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/litindex/core/annotate"
	"github.com/adalundhe/litindex/core/corpus"
	"github.com/adalundhe/litindex/core/document"
	"github.com/adalundhe/litindex/core/query"
)

func testConfig(root string) Config {
	cfg := DefaultConfig(root)
	cfg.MaxDocsPerShard = 100
	cfg.ResultCache.Enabled = false
	return cfg
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// writeStructuredDoc builds a structured-document file whose full text is
// the given sentences joined by single spaces, with matching spans.
func writeStructuredDoc(t *testing.T, dir, id, year, title string, subjects []string, sentences ...string) string {
	t.Helper()

	doc := annotate.StructuredDocument{
		Identifier: id,
		Subjects:   subjects,
		RawMarkup: fmt.Sprintf("<title>%s</title><author>Smith J</author><journal>Genetics</journal><year>%s</year>",
			title, year),
	}
	offset := 0
	for i, s := range sentences {
		if i > 0 {
			doc.Fulltext += " "
			offset++
		}
		doc.Fulltext += s
		doc.Sentences = append(doc.Sentences, annotate.SentenceSpan{
			Begin: offset,
			End:   offset + len(s),
		})
		offset += len(s)
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, id+".json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func ingest(t *testing.T, m *Manager, id, year, title string, sentences ...string) {
	t.Helper()
	path := writeStructuredDoc(t, t.TempDir(), id, year, title,
		[]string{"C. elegans"}, sentences...)
	require.NoError(t, m.AddFile(context.Background(), path))
}

func elegansQuery(g document.Granularity, keyword string) query.Query {
	return query.Query{
		Granularity: g,
		Keyword:     keyword,
		Corpora:     []string{"C. elegans"},
	}
}

func TestSearchRequiresCorpusScope(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Search(context.Background(), query.Query{
		Granularity: document.GranularityDocument,
		Keyword:     "dauer",
	}, SearchOptions{})
	assert.ErrorIs(t, err, query.ErrMissingCorpusScope)
}

func TestDocumentSearch(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper001", "2001", "Dauer formation",
		"Dauer larvae form under crowded conditions.")
	ingest(t, m, "WBPaper002", "2002", "Axon guidance",
		"Axons are guided by netrin gradients.")

	res, err := m.Search(context.Background(),
		elegansQuery(document.GranularityDocument, "dauer"), SearchOptions{})
	require.NoError(t, err)

	require.Len(t, res.Summaries, 1)
	assert.Equal(t, "WBPaper001", res.Summaries[0].Identifier)
	assert.Greater(t, res.Summaries[0].Score, 0.0)
	assert.Equal(t, res.MaxScore, res.Summaries[0].Score)
}

func TestSearchEmptyIndex(t *testing.T) {
	m := newTestManager(t)

	res, err := m.Search(context.Background(),
		elegansQuery(document.GranularityDocument, "anything"), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Summaries)
	assert.Zero(t, res.MaxScore)
}

func TestSentenceSearchGroupsByDocument(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper003", "2003", "Netrin signaling",
		"The netrin receptor is expressed in neurons.",
		"Netrin gradients guide axon outgrowth.",
		"Unrelated closing remark.")

	res, err := m.Search(context.Background(),
		elegansQuery(document.GranularitySentence, "netrin"), SearchOptions{})
	require.NoError(t, err)

	require.Len(t, res.Summaries, 1)
	summary := res.Summaries[0]
	assert.Equal(t, "WBPaper003", summary.Identifier)
	require.Len(t, summary.Sentences, 2)
	assert.Equal(t, 2, res.TotalSentences)

	sum := 0.0
	for _, s := range summary.Sentences {
		assert.Equal(t, "WBPaper003", s.DocIdentifier)
		sum += s.Score
	}
	assert.InDelta(t, sum, summary.Score, 1e-9)
}

func TestSearchSortByYear(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "old", "1995", "Old paper", "The shared keyword appears here.")
	ingest(t, m, "new", "2020", "New paper", "The shared keyword appears here.")
	ingest(t, m, "mid-a", "2005", "Mid paper A", "The shared keyword appears here.")
	ingest(t, m, "mid-b", "2005", "Mid paper B",
		"The shared keyword appears here; shared twice, so it scores higher.")

	q := elegansQuery(document.GranularityDocument, "shared")
	q.SortByYear = true

	res, err := m.Search(context.Background(), q, SearchOptions{})
	require.NoError(t, err)

	require.Len(t, res.Summaries, 4)
	assert.Equal(t, []string{"2020", "2005", "2005", "1995"}, []string{
		res.Summaries[0].Year, res.Summaries[1].Year,
		res.Summaries[2].Year, res.Summaries[3].Year,
	})

	// Equal years break ties by score descending.
	for i := 1; i < len(res.Summaries); i++ {
		a, b := res.Summaries[i-1], res.Summaries[i]
		assert.GreaterOrEqual(t, a.Year, b.Year)
		if a.Year == b.Year {
			assert.GreaterOrEqual(t, a.Score, b.Score)
		}
	}
	assert.NotEqual(t, res.Summaries[1].Score, res.Summaries[2].Score,
		"same-year documents should carry distinct scores")
}

func TestSearchSortByYearBulkHydration(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.BulkHydrateThreshold = 1
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	ingest(t, m, "bulk-old", "1990", "Old", "The shared keyword appears here.")
	ingest(t, m, "bulk-new", "2021", "New", "The shared keyword appears here.")
	ingest(t, m, "bulk-mid", "2005", "Mid", "The shared keyword appears here.")

	q := elegansQuery(document.GranularityDocument, "shared")
	q.SortByYear = true

	// Every match set is at or above the threshold, so years come from the
	// batched side-store read instead of per-record field reads.
	res, err := m.Search(context.Background(), q, SearchOptions{})
	require.NoError(t, err)

	require.Len(t, res.Summaries, 3)
	assert.Equal(t, []string{"2021", "2005", "1990"}, []string{
		res.Summaries[0].Year, res.Summaries[1].Year, res.Summaries[2].Year,
	})
	assert.Equal(t, []string{"bulk-new", "bulk-mid", "bulk-old"}, []string{
		res.Summaries[0].Identifier, res.Summaries[1].Identifier,
		res.Summaries[2].Identifier,
	})
}

func TestSearchIdentifierConstraint(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper010", "2010", "A", "The probe keyword appears.")
	ingest(t, m, "WBPaper011", "2011", "B", "The probe keyword appears.")

	res, err := m.Search(context.Background(),
		elegansQuery(document.GranularityDocument, "probe"),
		SearchOptions{Identifiers: []string{"WBPaper011"}})
	require.NoError(t, err)

	require.Len(t, res.Summaries, 1)
	assert.Equal(t, "WBPaper011", res.Summaries[0].Identifier)
}

func TestMatchesOnlyThenHydrate(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper020", "2020", "Partial", "Staged retrieval keyword.")

	q := elegansQuery(document.GranularityDocument, "staged")

	partial, err := m.Search(context.Background(), q, SearchOptions{MatchesOnly: true})
	require.NoError(t, err)
	require.NotNil(t, partial.Token)
	assert.Equal(t, 1, partial.Token.Size())
	assert.Empty(t, partial.Summaries)

	full, err := m.Search(context.Background(), q, SearchOptions{Token: partial.Token})
	require.NoError(t, err)
	require.Len(t, full.Summaries, 1)
	assert.Equal(t, "WBPaper020", full.Summaries[0].Identifier)
}

func TestTokenGoesStaleOnRefresh(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper021", "2021", "Stale", "Token staleness keyword.")

	q := elegansQuery(document.GranularityDocument, "staleness")
	partial, err := m.Search(context.Background(), q, SearchOptions{MatchesOnly: true})
	require.NoError(t, err)

	require.NoError(t, m.Refresh())

	_, err = m.Search(context.Background(), q, SearchOptions{Token: partial.Token})
	assert.ErrorIs(t, err, ErrStaleToken)
}

func TestCaseSensitiveSearch(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper030", "2007", "Case", "The Dauer pathway is conserved.")

	q := elegansQuery(document.GranularityDocument, "Dauer")
	q.CaseSensitive = true
	res, err := m.Search(context.Background(), q, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Summaries, 1)

	q.Keyword = "dauer"
	res, err = m.Search(context.Background(), q, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Summaries)
}

func TestRemoveFile(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper040", "2014", "Removable",
		"A removable document sentence.", "Another removable sentence.")

	ctx := context.Background()
	require.NoError(t, m.RemoveFile(ctx, "WBPaper040"))

	res, err := m.Search(ctx,
		elegansQuery(document.GranularityDocument, "removable"), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Summaries)

	res, err = m.Search(ctx,
		elegansQuery(document.GranularitySentence, "removable"), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Summaries)

	// The year survives removal in the side-store.
	year, ok, err := m.side.DocumentYear("WBPaper040")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2014", year)
}

func TestRemoveFileUnknownIdentifierLeavesNoTrace(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper041", "2013", "Present", "An indexed document.")

	ctx := context.Background()
	require.NoError(t, m.RemoveFile(ctx, "never-indexed"))

	_, ok, err := m.side.DocumentYear("never-indexed")
	require.NoError(t, err)
	assert.False(t, ok, "removing an unknown identifier must not create a year entry")
}

func TestGetDocumentsDetails(t *testing.T) {
	m := newTestManager(t)
	fulltext := "The inflated fulltext comes back verbatim."
	ingest(t, m, "WBPaper050", "2019", "Details paper", fulltext)

	ctx := context.Background()
	res, err := m.Search(ctx,
		elegansQuery(document.GranularityDocument, "inflated"), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)

	details, err := m.GetDocumentsDetails(ctx, res.Summaries, DetailOptions{})
	require.NoError(t, err)
	require.Len(t, details, 1)

	d := details[0]
	assert.Equal(t, "WBPaper050", d.Identifier)
	assert.Equal(t, "2019", d.Year)
	assert.Equal(t, fulltext, d.Fulltext)
	assert.Equal(t, "Details paper", d.Title)
	assert.Equal(t, "Smith J", d.Author)
	assert.Contains(t, d.Corpora, "C. elegans")
	require.NotNil(t, d.Match)
	assert.Equal(t, res.Summaries[0].Score, d.Match.Score)
}

func TestGetDocumentsDetailsProjection(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper051", "2018", "Projected", "Projection keyword text.")

	ctx := context.Background()
	res, err := m.Search(ctx,
		elegansQuery(document.GranularityDocument, "projection"), SearchOptions{})
	require.NoError(t, err)

	details, err := m.GetDocumentsDetails(ctx, res.Summaries, DetailOptions{
		IncludeFields: []string{document.FieldTitle},
	})
	require.NoError(t, err)
	require.Len(t, details, 1)

	assert.Equal(t, "Projected", details[0].Title)
	assert.Empty(t, details[0].Fulltext)
	assert.Equal(t, "2018", details[0].Year)
}

func TestSentenceDetails(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper052", "2017", "Sentences",
		"The targeted keyword sits in this sentence.",
		"A second sentence with no match.")

	ctx := context.Background()
	res, err := m.Search(ctx,
		elegansQuery(document.GranularitySentence, "targeted"), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)

	details, err := m.GetDocumentsDetails(ctx, res.Summaries, DetailOptions{
		IncludeSentences: true,
	})
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Len(t, details[0].Sentences, 1)

	s := details[0].Sentences[0]
	assert.Equal(t, 0, s.Number)
	assert.Equal(t, "The targeted keyword sits in this sentence.", s.Text)
}

func TestDetailsForMissingRecordAreEmpty(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "WBPaper053", "2016", "Present", "Some indexed text.")

	details, err := m.GetDocumentsDetails(context.Background(),
		[]document.DocumentSummary{{Identifier: "ghost", Key: "ghost", Score: 1.5}},
		DetailOptions{})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "ghost", details[0].Identifier)
	assert.Empty(t, details[0].Fulltext)
	assert.Equal(t, 1.5, details[0].Match.Score)
}

func TestMutationLock(t *testing.T) {
	m := newTestManager(t)

	other := flock.New(filepath.Join(m.Root(), lockFileName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	path := writeStructuredDoc(t, t.TempDir(), "blocked", "2000", "Blocked",
		[]string{"C. elegans"}, "Blocked text.")
	err = m.AddFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrMutationInFlight)
}

func TestAddFileSkipsEmptyDocuments(t *testing.T) {
	m := newTestManager(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"identifier": "empty", "fulltext": ""}`), 0o644))

	require.NoError(t, m.AddFile(context.Background(), path))
}

func TestCreateFromDirectory(t *testing.T) {
	m := newTestManager(t)

	dir := t.TempDir()
	writeStructuredDoc(t, dir, "bulk-1", "2001", "Bulk one",
		[]string{"C. elegans"}, "Bulk ingestion text one.")
	writeStructuredDoc(t, dir, "bulk-2", "2002", "Bulk two",
		[]string{"C. elegans"}, "Bulk ingestion text two.")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("not a structured document"), 0o644))

	ctx := context.Background()
	require.NoError(t, m.CreateFromDirectory(ctx, dir))

	res, err := m.Search(ctx,
		elegansQuery(document.GranularityDocument, "ingestion"), SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Summaries, 2)

	// Bulk ingestion ends with a counter recompute.
	n, err := m.CorpusCount(ctx, "C. elegans", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecomputeCounts(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "count-1", "2001", "One", "Counting text one.")
	ingest(t, m, "count-2", "2002", "Two", "Counting text two.")

	ctx := context.Background()
	require.NoError(t, m.RecomputeCounts(ctx))
	require.NoError(t, m.RecomputeCounts(ctx))

	n, err := m.CorpusCount(ctx, "C. elegans", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.CorpusCount(ctx, corpus.Unclassified, false)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFederatedSearch(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "local-1", "2001", "Local", "Federated probe keyword, local copy.")

	extRoot := t.TempDir()
	ext, err := NewManager(testConfig(extRoot))
	require.NoError(t, err)
	path := writeStructuredDoc(t, t.TempDir(), "remote-1", "2002", "Remote",
		[]string{"C. elegans"}, "Federated probe keyword, remote copy.")
	ctx := context.Background()
	require.NoError(t, ext.AddFile(ctx, path))
	require.NoError(t, ext.RecomputeCounts(ctx))
	require.NoError(t, ext.Close())

	require.NoError(t, m.AttachExternal(extRoot))
	defer m.DetachExternal()
	assert.True(t, m.External().IsExternal())

	res, err := m.Search(ctx,
		elegansQuery(document.GranularityDocument, "federated"), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Summaries, 2)

	byID := map[string]document.DocumentSummary{}
	for _, s := range res.Summaries {
		byID[s.Identifier] = s
	}
	assert.False(t, byID["local-1"].External)
	assert.True(t, byID["remote-1"].External)

	details, err := m.GetDocumentsDetails(ctx, res.Summaries, DetailOptions{})
	require.NoError(t, err)
	require.Len(t, details, 2)
	for _, d := range details {
		if d.Identifier == "remote-1" {
			assert.True(t, d.External)
			assert.Contains(t, d.Fulltext, "remote copy")
		}
	}
}

func TestFederatedCorpusCount(t *testing.T) {
	m := newTestManager(t)
	ingest(t, m, "local-2", "2001", "Local", "Counted locally.")

	ctx := context.Background()
	require.NoError(t, m.RecomputeCounts(ctx))

	extRoot := t.TempDir()
	ext, err := NewManager(testConfig(extRoot))
	require.NoError(t, err)
	path := writeStructuredDoc(t, t.TempDir(), "remote-2", "2002", "Remote",
		[]string{"C. elegans"}, "Counted remotely.")
	require.NoError(t, ext.AddFile(ctx, path))
	require.NoError(t, ext.RecomputeCounts(ctx))
	require.NoError(t, ext.Close())

	require.NoError(t, m.AttachExternal(extRoot))
	defer m.DetachExternal()

	n, err := m.CorpusCount(ctx, "C. elegans", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.CorpusCount(ctx, "C. elegans", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAttachExternalTwiceFails(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AttachExternal(t.TempDir()))
	defer m.DetachExternal()

	err := m.AttachExternal(t.TempDir())
	assert.ErrorIs(t, err, ErrExternalAttached)
}

func TestClosedManagerRejectsCalls(t *testing.T) {
	m, err := NewManager(testConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = m.Search(context.Background(),
		elegansQuery(document.GranularityDocument, "x"), SearchOptions{})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = m.CorpusCount(context.Background(), "C. elegans", false)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShardRolloverKeepsSearchUnion(t *testing.T) {
	m, err := NewManager(Config{
		Root:            t.TempDir(),
		MaxDocsPerShard: 2,
		ResultCache:     ResultCacheConfig{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	for i := 0; i < 5; i++ {
		ingest(t, m, fmt.Sprintf("roll-%d", i), "2010", "Rollover",
			"Rollover union keyword text.")
	}

	res, err := m.Search(context.Background(),
		elegansQuery(document.GranularityDocument, "union"), SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Summaries, 5)
}
