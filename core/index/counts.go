package index

import (
	"context"

	"github.com/adalundhe/litindex/core/corpus"
	"github.com/adalundhe/litindex/core/document"
	"github.com/adalundhe/litindex/core/query"
)

// CorpusCount returns the cached document count for a corpus. When
// useExternal is set and an external index is attached, its count for the
// same corpus is added in.
func (m *Manager) CorpusCount(ctx context.Context, name string, useExternal bool) (int, error) {
	if m.isClosed() {
		return 0, ErrClosed
	}

	n, err := m.counter.Count(name)
	if err != nil {
		return 0, err
	}

	if useExternal {
		if external := m.externalInstance(); external != nil {
			ext, err := external.CorpusCount(ctx, name, false)
			if err != nil {
				return 0, err
			}
			n += ext
		}
	}
	return n, nil
}

// CorpusCounts returns the full cached counter table for this instance.
func (m *Manager) CorpusCounts() (map[string]int, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	return m.counter.Table()
}

// RecomputeCounts rebuilds the corpus counter by issuing one scoped
// matches-only count per known corpus against the live document index,
// then persists the table. Mutations are locked out while it runs.
func (m *Manager) RecomputeCounts(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}

	unlock, err := m.acquireMutationLock()
	if err != nil {
		return err
	}
	defer unlock()

	return m.recomputeCountsLocked(ctx)
}

func (m *Manager) recomputeCountsLocked(ctx context.Context) error {
	return m.counter.Recompute(ctx, m.countCorpus)
}

// countCorpus is the CountFunc backing recomputes: a corpus-scope-only
// resolve at document granularity, counting match-set cardinality without
// hydration. The external instance is never consulted; each instance
// counts its own documents.
func (m *Manager) countCorpus(ctx context.Context, name string) (int, error) {
	q := query.Query{
		Granularity: document.GranularityDocument,
		Corpora:     []string{name},
	}
	composed, err := query.Compose(q)
	if err != nil {
		return 0, err
	}

	token, err := m.resolve(ctx, q, composed, nil)
	if err != nil {
		return 0, err
	}
	return len(token.hits), nil
}

// KnownCorpora returns the corpus names the counter tracks.
func (m *Manager) KnownCorpora() []string {
	return corpus.Known()
}
