package shard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/adalundhe/litindex/core/document"
)

// Prefix names shard subdirectories: subindex_0, subindex_1, ...
const Prefix = "subindex_"

// Physical sub-index directory names inside a shard.
const (
	SubFulltext   = "fulltext"
	SubFulltextCS = "fulltext_cs"
	SubSentence   = "sentence"
	SubSentenceCS = "sentence_cs"
)

// ErrShardIO indicates the underlying shard storage is unavailable or
// corrupt. It is surfaced to the caller; shard access never terminates the
// process.
var ErrShardIO = errors.New("shard storage error")

// SubIndexName maps (granularity, case sensitivity) to the physical
// sub-index directory name.
func SubIndexName(g document.Granularity, caseSensitive bool) string {
	switch {
	case g == document.GranularitySentence && caseSensitive:
		return SubSentenceCS
	case g == document.GranularitySentence:
		return SubSentence
	case caseSensitive:
		return SubFulltextCS
	default:
		return SubFulltext
	}
}

func subIndexGranularity(sub string) document.Granularity {
	if sub == SubSentence || sub == SubSentenceCS {
		return document.GranularitySentence
	}
	return document.GranularityDocument
}

// Directory discovers, creates, and caches engine handles for the index's
// shards. Handles are opened once per path and reused; a handle opened
// before a mutation does not see that mutation, so callers needing fresh
// visibility call Invalidate and re-read. Generation identifies the current
// shard layout; it advances whenever a shard is created or the cache is
// invalidated, which is how continuation tokens detect staleness.
type Directory struct {
	root   string
	logger *slog.Logger

	mu         sync.RWMutex
	handles    map[string]bleve.Index
	generation uint64
}

// NewDirectory creates a Directory rooted at the index root. No shard is
// opened until first use.
func NewDirectory(root string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		root:    root,
		logger:  logger,
		handles: make(map[string]bleve.Index),
	}
}

// Root returns the index root directory.
func (d *Directory) Root() string { return d.root }

// Generation returns the current shard-layout generation.
func (d *Directory) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

// Shards enumerates the existing shard numbers in ascending order.
func (d *Directory) Shards() ([]int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read index root: %v", ErrShardIO, err)
	}

	var shards []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), Prefix))
		if err != nil {
			continue
		}
		shards = append(shards, n)
	}
	sort.Ints(shards)
	return shards, nil
}

// ShardPath returns the directory of shard n.
func (d *Directory) ShardPath(n int) string {
	return filepath.Join(d.root, Prefix+strconv.Itoa(n))
}

// Handle returns the cached engine handle for one (shard, sub-index) pair,
// opening it on first use. The same handle serves reads and writes.
func (d *Directory) Handle(shard int, sub string) (bleve.Index, error) {
	path := filepath.Join(d.ShardPath(shard), sub)

	d.mu.RLock()
	h, ok := d.handles[path]
	d.mu.RUnlock()
	if ok {
		return h, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.handles[path]; ok {
		return h, nil
	}

	h, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrShardIO, path, err)
	}
	d.handles[path] = h
	return h, nil
}

// Subreaders returns the ordered union of handles for one (granularity,
// case) pair across all shards, opening any shard seen for the first time.
func (d *Directory) Subreaders(g document.Granularity, caseSensitive bool) ([]bleve.Index, error) {
	shards, err := d.Shards()
	if err != nil {
		return nil, err
	}

	sub := SubIndexName(g, caseSensitive)
	readers := make([]bleve.Index, 0, len(shards))
	for _, n := range shards {
		h, err := d.Handle(n, sub)
		if err != nil {
			return nil, err
		}
		readers = append(readers, h)
	}
	return readers, nil
}

// EnsureWritableShard returns the shard that should receive the next
// document, creating a new shard when the current one has reached maxDocs.
// fresh reports that the returned shard has not yet committed a document,
// which lets callers skip per-shard setup that only applies once. The
// check is idempotent under retries: a shard stays fresh until its first
// committed document makes its count non-zero.
func (d *Directory) EnsureWritableShard(maxDocs uint64) (shard int, fresh bool, err error) {
	shards, err := d.Shards()
	if err != nil {
		return 0, false, err
	}

	if len(shards) == 0 {
		if err := d.createShard(0); err != nil {
			return 0, false, err
		}
		return 0, true, nil
	}

	current := shards[len(shards)-1]
	h, err := d.Handle(current, SubFulltext)
	if err != nil {
		return 0, false, err
	}
	count, err := h.DocCount()
	if err != nil {
		return 0, false, fmt.Errorf("%w: count shard %d: %v", ErrShardIO, current, err)
	}

	if count > 0 && count%maxDocs == 0 {
		next := current + 1
		if err := d.createShard(next); err != nil {
			return 0, false, err
		}
		return next, true, nil
	}

	return current, count == 0, nil
}

// createShard creates shard n with its four physical sub-indices and
// caches their handles. Advances the layout generation.
func (d *Directory) createShard(n int) error {
	path := d.ShardPath(n)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: create shard %d: %v", ErrShardIO, n, err)
	}

	subs := []string{SubFulltext, SubFulltextCS, SubSentence, SubSentenceCS}
	caseSensitive := map[string]bool{SubFulltextCS: true, SubSentenceCS: true}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range subs {
		subPath := filepath.Join(path, sub)
		im := buildMapping(subIndexGranularity(sub), caseSensitive[sub])
		h, err := bleve.New(subPath, im)
		if err != nil {
			return fmt.Errorf("%w: create sub-index %s: %v", ErrShardIO, subPath, err)
		}
		d.handles[subPath] = h
	}
	d.generation++

	d.logger.Info("created shard", "shard", n, "path", path)
	return nil
}

// Invalidate closes and forgets every cached handle so the next access
// reopens the shards and sees all committed mutations. Advances the layout
// generation, which invalidates outstanding continuation tokens.
func (d *Directory) Invalidate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for path, h := range d.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: close %s: %v", ErrShardIO, path, err)
		}
	}
	d.handles = make(map[string]bleve.Index)
	d.generation++
	return firstErr
}

// Close releases all cached handles. The Directory is unusable afterwards
// except via Invalidate-style reopening on next access.
func (d *Directory) Close() error {
	return d.Invalidate()
}
