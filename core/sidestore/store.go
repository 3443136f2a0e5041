// Package sidestore persists denormalized join fields keyed by engine
// record key: the year of each document, and the parent document plus year
// of each sentence. It exists so sorting and grouping never pay a per-record
// index read. Entries outlive their records: when a document is removed its
// year stays behind for historical year-sorted queries.
//
// The store opens and closes its database on every call. There is no
// connection pool; mutation frequency is low and the bounded resource usage
// is worth the per-call open cost.
package sidestore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DirName is the side-store's subdirectory under the index root.
const DirName = "db"

const fileName = "sidestore.db"

// batchSize bounds the number of keys in a single IN (...) lookup.
const batchSize = 500

const schema = `
CREATE TABLE IF NOT EXISTS doc_year (
	key  TEXT PRIMARY KEY,
	year TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sentence_doc (
	key    TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	year   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sentence_doc_id ON sentence_doc(doc_id);
`

// SentenceRef is the denormalized record a sentence entry resolves to.
type SentenceRef struct {
	DocID string
	Year  string
}

// Store is a side-store rooted under <index root>/db.
type Store struct {
	path   string
	logger *slog.Logger
}

// New creates a Store for the given index root. The database file is
// created lazily on first write.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   filepath.Join(root, DirName, fileName),
		logger: logger,
	}
}

// open opens the database for one call and ensures the schema exists.
func (s *Store) open() (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create side-store directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open side-store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init side-store schema: %w", err)
	}
	return db, nil
}

// PutDocumentYear records the year for a document record key.
func (s *Store) PutDocumentYear(key, year string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(
		`INSERT INTO doc_year (key, year) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET year = excluded.year`,
		key, year,
	)
	if err != nil {
		return fmt.Errorf("put document year: %w", err)
	}
	return nil
}

// PutSentence records the parent document and year for a sentence record
// key.
func (s *Store) PutSentence(key, docID, year string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(
		`INSERT INTO sentence_doc (key, doc_id, year) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET doc_id = excluded.doc_id, year = excluded.year`,
		key, docID, year,
	)
	if err != nil {
		return fmt.Errorf("put sentence: %w", err)
	}
	return nil
}

// PutSentences records a batch of sentence entries in one transaction.
func (s *Store) PutSentences(entries map[string]SentenceRef) error {
	if len(entries) == 0 {
		return nil
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("put sentences: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO sentence_doc (key, doc_id, year) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET doc_id = excluded.doc_id, year = excluded.year`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("put sentences: %w", err)
	}
	defer stmt.Close()

	for key, ref := range entries {
		if _, err := stmt.Exec(key, ref.DocID, ref.Year); err != nil {
			tx.Rollback()
			return fmt.Errorf("put sentence %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put sentences: %w", err)
	}
	return nil
}

// DocumentYear resolves the year for one document key.
func (s *Store) DocumentYear(key string) (string, bool, error) {
	db, err := s.open()
	if err != nil {
		return "", false, err
	}
	defer db.Close()

	var year string
	err = db.QueryRow(`SELECT year FROM doc_year WHERE key = ?`, key).Scan(&year)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get document year: %w", err)
	}
	return year, true, nil
}

// DocumentYears resolves years for a batch of document keys. Keys with no
// entry are absent from the result.
func (s *Store) DocumentYears(keys []string) (map[string]string, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	years := make(map[string]string, len(keys))
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		chunk := keys[start:end]

		rows, err := db.Query(
			`SELECT key, year FROM doc_year WHERE key IN (`+placeholders(len(chunk))+`)`,
			args(chunk)...,
		)
		if err != nil {
			return nil, fmt.Errorf("get document years: %w", err)
		}
		for rows.Next() {
			var key, year string
			if err := rows.Scan(&key, &year); err != nil {
				rows.Close()
				return nil, fmt.Errorf("get document years: %w", err)
			}
			years[key] = year
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("get document years: %w", err)
		}
		rows.Close()
	}
	return years, nil
}

// Sentence resolves one sentence key to its parent document and year.
func (s *Store) Sentence(key string) (SentenceRef, bool, error) {
	db, err := s.open()
	if err != nil {
		return SentenceRef{}, false, err
	}
	defer db.Close()

	var ref SentenceRef
	err = db.QueryRow(`SELECT doc_id, year FROM sentence_doc WHERE key = ?`, key).
		Scan(&ref.DocID, &ref.Year)
	if err == sql.ErrNoRows {
		return SentenceRef{}, false, nil
	}
	if err != nil {
		return SentenceRef{}, false, fmt.Errorf("get sentence: %w", err)
	}
	return ref, true, nil
}

// Sentences resolves a batch of sentence keys. Keys with no entry are
// absent from the result.
func (s *Store) Sentences(keys []string) (map[string]SentenceRef, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	refs := make(map[string]SentenceRef, len(keys))
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		chunk := keys[start:end]

		rows, err := db.Query(
			`SELECT key, doc_id, year FROM sentence_doc WHERE key IN (`+placeholders(len(chunk))+`)`,
			args(chunk)...,
		)
		if err != nil {
			return nil, fmt.Errorf("get sentences: %w", err)
		}
		for rows.Next() {
			var key string
			var ref SentenceRef
			if err := rows.Scan(&key, &ref.DocID, &ref.Year); err != nil {
				rows.Close()
				return nil, fmt.Errorf("get sentences: %w", err)
			}
			refs[key] = ref
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("get sentences: %w", err)
		}
		rows.Close()
	}
	return refs, nil
}

// SentenceKeysForDocument lists the sentence keys recorded for a parent
// document, used when removing a document's sentences.
func (s *Store) SentenceKeysForDocument(docID string) ([]string, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT key FROM sentence_doc WHERE doc_id = ?`, docID)
	if err != nil {
		return nil, fmt.Errorf("list sentences for document: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("list sentences for document: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sentences for document: %w", err)
	}
	return keys, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func args(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
