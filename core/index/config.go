package index

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default operating limits.
const (
	// DefaultMaxDocsPerShard is the shard rollover bound: every shard
	// except the newest holds exactly this many documents.
	DefaultMaxDocsPerShard = 50_000

	// DefaultBulkHydrateThreshold is the match-set size at which summary
	// hydration switches from per-record field reads to the bulk
	// side-store strategy.
	DefaultBulkHydrateThreshold = 30_000

	// DefaultMaxMatches caps the cardinality of a single resolved match
	// set.
	DefaultMaxMatches = 1_000_000

	// DefaultDetailBatchSize caps the identifiers in one detail lookup
	// query, respecting engine query-complexity limits.
	DefaultDetailBatchSize = 200

	// DefaultFieldCacheSize bounds the decompressed-field LRU in the
	// detail hydrator.
	DefaultFieldCacheSize = 4096

	// DefaultIngestGlob selects structured-document files during bulk
	// ingestion.
	DefaultIngestGlob = "*.json"
)

// ResultCacheConfig sizes the optional search-result cache.
type ResultCacheConfig struct {
	Enabled     bool  `yaml:"enabled"`
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

// Config configures an index Manager.
type Config struct {
	// Root is the index root directory: shard subdirectories, the
	// side-store and the corpus counter live underneath it.
	Root string `yaml:"root"`

	MaxDocsPerShard      uint64 `yaml:"max_docs_per_shard"`
	BulkHydrateThreshold int    `yaml:"bulk_hydrate_threshold"`
	MaxMatches           int    `yaml:"max_matches"`
	DetailBatchSize      int    `yaml:"detail_batch_size"`
	FieldCacheSize       int    `yaml:"field_cache_size"`
	IngestGlob           string `yaml:"ingest_glob"`

	ResultCache ResultCacheConfig `yaml:"result_cache"`
}

// DefaultConfig returns the default configuration for an index rooted at
// the given directory.
func DefaultConfig(root string) Config {
	return Config{
		Root:                 root,
		MaxDocsPerShard:      DefaultMaxDocsPerShard,
		BulkHydrateThreshold: DefaultBulkHydrateThreshold,
		MaxMatches:           DefaultMaxMatches,
		DetailBatchSize:      DefaultDetailBatchSize,
		FieldCacheSize:       DefaultFieldCacheSize,
		IngestGlob:           DefaultIngestGlob,
		ResultCache: ResultCacheConfig{
			Enabled:     true,
			NumCounters: 1e5,
			MaxCost:     1e7,
			BufferItems: 64,
		},
	}
}

// LoadConfig reads a YAML config file and merges it with defaults. A
// missing file yields the defaults for the given root.
func LoadConfig(path, root string) (Config, error) {
	cfg := DefaultConfig(root)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return applyDefaults(cfg), nil
}

// applyDefaults fills zero-valued limits with their defaults.
func applyDefaults(cfg Config) Config {
	def := DefaultConfig(cfg.Root)
	if cfg.MaxDocsPerShard == 0 {
		cfg.MaxDocsPerShard = def.MaxDocsPerShard
	}
	if cfg.BulkHydrateThreshold == 0 {
		cfg.BulkHydrateThreshold = def.BulkHydrateThreshold
	}
	if cfg.MaxMatches == 0 {
		cfg.MaxMatches = def.MaxMatches
	}
	if cfg.DetailBatchSize == 0 {
		cfg.DetailBatchSize = def.DetailBatchSize
	}
	if cfg.FieldCacheSize == 0 {
		cfg.FieldCacheSize = def.FieldCacheSize
	}
	if cfg.IngestGlob == "" {
		cfg.IngestGlob = def.IngestGlob
	}
	if cfg.ResultCache.Enabled {
		if cfg.ResultCache.NumCounters == 0 {
			cfg.ResultCache.NumCounters = def.ResultCache.NumCounters
		}
		if cfg.ResultCache.MaxCost == 0 {
			cfg.ResultCache.MaxCost = def.ResultCache.MaxCost
		}
		if cfg.ResultCache.BufferItems == 0 {
			cfg.ResultCache.BufferItems = def.ResultCache.BufferItems
		}
	}
	return cfg
}
