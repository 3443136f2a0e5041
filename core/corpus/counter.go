package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// CounterFileName is the counter blob's file name under the index root.
const CounterFileName = "cc.cfg"

// recomputeConcurrency bounds how many per-corpus count queries run at once
// during a recompute.
const recomputeConcurrency = 4

// CountFunc resolves the number of live documents scoped to a single
// corpus. The index manager supplies one backed by a matches-only search.
type CountFunc func(ctx context.Context, corpus string) (int, error)

// Counter is the persisted corpus-name to document-count table. It is a
// cache, not a source of truth: counts may go stale between mutations and
// are refreshed wholesale by Recompute.
type Counter struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	table  map[string]int
	loaded bool
}

// NewCounter creates a Counter persisted at <root>/cc.cfg. Nothing is read
// from disk until the first count request.
func NewCounter(root string, logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{
		path:   filepath.Join(root, CounterFileName),
		logger: logger,
	}
}

// Count returns the cached count for a corpus, lazily loading the persisted
// table on first use. An unknown corpus counts zero.
func (c *Counter) Count(corpus string) (int, error) {
	c.mu.RLock()
	if c.loaded {
		n := c.table[corpus]
		c.mu.RUnlock()
		return n, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		if err := c.loadLocked(); err != nil {
			return 0, err
		}
	}
	return c.table[corpus], nil
}

// Table returns a copy of the full counter table, loading it if needed.
func (c *Counter) Table() (map[string]int, error) {
	if _, err := c.Count(""); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.table))
	for k, v := range c.table {
		out[k] = v
	}
	return out, nil
}

// loadLocked reads the persisted table. A missing file means an empty
// table, not an error. Must be called with the write lock held.
func (c *Counter) loadLocked() error {
	c.table = make(map[string]int)
	c.loaded = true

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read corpus counter: %w", err)
	}

	if err := yaml.Unmarshal(data, &c.table); err != nil {
		return fmt.Errorf("parse corpus counter: %w", err)
	}
	if c.table == nil {
		c.table = make(map[string]int)
	}
	return nil
}

// Recompute rebuilds the whole table by issuing one scoped count per known
// corpus, then persists it, replacing any prior values. The write goes to a
// temp file first and is renamed into place.
func (c *Counter) Recompute(ctx context.Context, count CountFunc) error {
	corpora := Known()
	counts := make([]int, len(corpora))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeConcurrency)
	for i, name := range corpora {
		g.Go(func() error {
			n, err := count(gctx, name)
			if err != nil {
				return fmt.Errorf("count corpus %q: %w", name, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	table := make(map[string]int, len(corpora))
	for i, name := range corpora {
		table[name] = counts[i]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.saveLocked(table); err != nil {
		return err
	}
	c.table = table
	c.loaded = true

	c.logger.Info("corpus counter recomputed", "corpora", len(table), "path", c.path)
	return nil
}

// saveLocked persists the table atomically. Must be called with the write
// lock held.
func (c *Counter) saveLocked(table map[string]int) error {
	data, err := yaml.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshal corpus counter: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write corpus counter: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace corpus counter: %w", err)
	}
	return nil
}
