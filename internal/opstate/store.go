// Package opstate persists SeedClaw's small runtime state: credentials
// and prompt overrides set from the admin console, the Discord read
// cursor, and the monitoring rules. Values are strings grouped by
// namespace.
package opstate

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Namespaces used across the binary.
const (
	NamespaceSettings = "settings"
	NamespaceDiscord  = "discord"
	NamespaceRules    = "rules"
)

// Store is a namespaced key-value store backed by SQLite. It is safe
// for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the state database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between the bridge and
	// the console goroutine.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS state (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`)
	return err
}

// Get returns the value for namespace/key, or "" if it is not set.
func (s *Store) Get(namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM state WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// GetInt returns the integer stored at namespace/key, or def if the
// key is missing or not an integer.
func (s *Store) GetInt(namespace, key string, def int) (int, error) {
	v, err := s.Get(namespace, key)
	if err != nil {
		return def, err
	}
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// Set upserts namespace/key.
func (s *Store) Set(namespace, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO state (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// SetInt stores an integer at namespace/key.
func (s *Store) SetInt(namespace, key string, n int) error {
	return s.Set(namespace, key, strconv.Itoa(n))
}

// Delete removes namespace/key. Missing keys are not an error.
func (s *Store) Delete(namespace, key string) error {
	if _, err := s.db.Exec(
		`DELETE FROM state WHERE namespace = ? AND key = ?`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// ReplaceNamespace atomically swaps every entry of namespace for
// values. The rule set is written this way so a crash never leaves a
// half-renumbered list.
func (s *Store) ReplaceNamespace(namespace string, values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace %s: %w", namespace, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(`DELETE FROM state WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("replace %s: %w", namespace, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range values {
		if _, err := tx.Exec(
			`INSERT INTO state (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)`,
			namespace, k, v, now,
		); err != nil {
			return fmt.Errorf("replace %s/%s: %w", namespace, k, err)
		}
	}
	return tx.Commit()
}

// List returns every key/value in namespace. The map is never nil.
func (s *Store) List(namespace string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM state WHERE namespace = ? ORDER BY key`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		result[k] = v
	}
	return result, rows.Err()
}
