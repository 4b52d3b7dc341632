// Package sqlite persists registry cache envelopes in a local sqlite
// database, one row per scan root.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vulnlab/internal/cache"

	_ "modernc.org/sqlite"
)

var _ cache.EnvelopeStore = (*EnvelopeStore)(nil)

// EnvelopeStore is the durable cache tier. Writes go through sqlite's
// transaction machinery, so an envelope is replaced whole or not at all.
type EnvelopeStore struct {
	db *sql.DB
}

// Open creates or opens the cache database at path, creating parent
// directories as needed.
func Open(path string) (*EnvelopeStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set cache db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set cache db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS registry_envelopes (
	root TEXT PRIMARY KEY,
	envelope_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	return &EnvelopeStore{db: db}, nil
}

func (s *EnvelopeStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *EnvelopeStore) Load(root string) (cache.Envelope, bool, error) {
	var envelopeJSON string
	err := s.db.QueryRow(`SELECT envelope_json FROM registry_envelopes WHERE root = ?`, root).Scan(&envelopeJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Envelope{}, false, nil
		}
		return cache.Envelope{}, false, fmt.Errorf("query cache envelope %q: %w", root, err)
	}

	var env cache.Envelope
	if err := json.Unmarshal([]byte(envelopeJSON), &env); err != nil {
		return cache.Envelope{}, false, fmt.Errorf("unmarshal cache envelope %q: %w", root, err)
	}
	return env, true, nil
}

func (s *EnvelopeStore) Store(env cache.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cache envelope: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO registry_envelopes (root, envelope_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(root) DO UPDATE SET
		 envelope_json = excluded.envelope_json,
		 updated_at = excluded.updated_at`,
		env.Root,
		string(payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save cache envelope: %w", err)
	}
	return nil
}

func (s *EnvelopeStore) Delete(root string) error {
	if _, err := s.db.Exec(`DELETE FROM registry_envelopes WHERE root = ?`, root); err != nil {
		return fmt.Errorf("delete cache envelope: %w", err)
	}
	return nil
}
