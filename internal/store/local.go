// Package store implements CodeMentor's local persistence: a small key-value
// table for experience state and the installation identity, plus the novelty
// index of previously surfaced negative feedback. Everything lives in one
// SQLite database under the data directory and survives restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"codementor/internal/logging"
)

// LocalStore wraps the SQLite database. Safe for concurrent use, although the
// calling contract serves one feedback request at a time.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *LocalStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS novelty (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remark TEXT NOT NULL,
			embedding TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// =============================================================================
// KEY-VALUE STATE
// =============================================================================

// GetValue returns the stored value for key, or "" when absent.
func (s *LocalStore) GetValue(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// SetValue stores value under key, replacing any previous value.
func (s *LocalStore) SetValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	logging.StoreDebug("kv set %s (%d bytes)", key, len(value))
	return nil
}

// GetInt returns the stored integer for key, or 0 when absent.
func (s *LocalStore) GetInt(key string) (int, error) {
	v, err := s.GetValue(key)
	if err != nil || v == "" {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("key %q holds non-integer %q: %w", key, v, err)
	}
	return n, nil
}

// SetInt stores an integer under key.
func (s *LocalStore) SetInt(key string, n int) error {
	return s.SetValue(key, strconv.Itoa(n))
}

// GetJSON unmarshals the stored JSON value for key into out.
// Absent keys leave out untouched and return false.
func (s *LocalStore) GetJSON(key string, out interface{}) (bool, error) {
	v, err := s.GetValue(key)
	if err != nil || v == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return false, fmt.Errorf("key %q holds malformed JSON: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v as JSON under key.
func (s *LocalStore) SetJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %q: %w", key, err)
	}
	return s.SetValue(key, string(data))
}

// ClientID returns the stable installation UUID, generating and persisting
// one on first call. The UUID identifies this installation in the telemetry
// backend across sessions.
func (s *LocalStore) ClientID() (string, error) {
	id, err := s.GetValue("client_id")
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.SetValue("client_id", id); err != nil {
		return "", err
	}
	logging.Store("Generated new client id %s", id)
	return id, nil
}
