// Package index implements the literature index manager: shard lifecycle,
// the two-phase search protocol, lazy and bulk summary hydration, detail
// resolution with field projection, corpus counting, mutations, and
// federation with an optional external index instance.
//
// The manager is a library, not a service: scheduling is synchronous and
// single-call-stack, reads may run concurrently once shard handles are
// cached, and mutations are serialized by a per-root advisory file lock.
package index

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gobwas/glob"
	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/litindex/core/annotate"
	"github.com/adalundhe/litindex/core/corpus"
	"github.com/adalundhe/litindex/core/shard"
	"github.com/adalundhe/litindex/core/sidestore"
)

// lockFileName is the advisory mutation lock under the index root.
const lockFileName = ".litindex.lock"

// Manager is the index manager for one index root.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	dir      *shard.Directory
	side     *sidestore.Store
	counter  *corpus.Counter
	pipeline annotate.Pipeline

	cache      *resultCache
	fieldCache *lru.Cache[string, string]

	ingestGlob glob.Glob
	lock       *flock.Flock

	mu         sync.RWMutex
	external   *Manager
	isExternal bool
	closed     bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithPipeline sets the annotation pipeline used for ingestion. Defaults
// to the structured-document file reader.
func WithPipeline(p annotate.Pipeline) Option {
	return func(m *Manager) { m.pipeline = p }
}

// NewManager creates a Manager for the index rooted at cfg.Root, creating
// the root directory if needed. No shard is opened until first use.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	cfg = applyDefaults(cfg)
	if cfg.Root == "" {
		return nil, fmt.Errorf("index root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create index root: %w", err)
	}

	m := &Manager{
		cfg:      cfg,
		pipeline: annotate.FilePipeline{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	g, err := glob.Compile(cfg.IngestGlob)
	if err != nil {
		return nil, fmt.Errorf("compile ingest glob %q: %w", cfg.IngestGlob, err)
	}
	m.ingestGlob = g

	m.dir = shard.NewDirectory(cfg.Root, m.logger)
	m.side = sidestore.New(cfg.Root, m.logger)
	m.counter = corpus.NewCounter(cfg.Root, m.logger)
	m.lock = flock.New(filepath.Join(cfg.Root, lockFileName))

	m.cache, err = newResultCache(cfg.ResultCache)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	m.fieldCache, err = lru.New[string, string](cfg.FieldCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create field cache: %w", err)
	}

	return m, nil
}

// Root returns the index root directory.
func (m *Manager) Root() string { return m.cfg.Root }

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// IsExternal reports whether this instance serves as another manager's
// federated secondary.
func (m *Manager) IsExternal() bool { return m.isExternal }

// Refresh discards all cached shard handles and cached results so
// subsequent reads observe every committed mutation. Outstanding
// continuation tokens become stale.
func (m *Manager) Refresh() error {
	m.cache.Clear()
	m.fieldCache.Purge()
	return m.dir.Invalidate()
}

// Close releases the manager and, if attached, its external instance.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.cache.Close()

	var firstErr error
	if m.external != nil {
		if err := m.external.Close(); err != nil {
			firstErr = err
		}
		m.external = nil
	}
	if err := m.dir.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// externalInstance returns the attached external manager, or nil.
func (m *Manager) externalInstance() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.external
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
