// Package store is the persistent layer: a SQLite-backed database of
// Connections and Messages, file-blob storage for FILE messages, and the
// restart-safe peer-id allocator's sidecar file (spec §4.3, §4.4).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nkct/ap2pmsg/pkg/ap2p/definition"

	_ "modernc.org/sqlite"
)

// Store wraps one handle to the SQLite database file. Per spec §4.3 and
// §9, every logical operation in this package opens what is conceptually
// its own handle; in Go that maps onto *sql.DB's own internal connection
// pool, which already serializes writers against the single database file,
// so one *sql.DB per process is both idiomatic and sufficient.
type Store struct {
	db       *sql.DB
	filesDir string
	log      definition.Logger
}

// Open opens (creating if necessary) the SQLite database at path, creates
// the Connections and Messages tables if they don't already exist, and
// ensures filesDir exists for FILE message blobs.
func Open(path string, filesDir string, log definition.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating files dir %s: %w", filesDir, err)
	}
	s := &Store{db: db, filesDir: filesDir, log: log}
	if err := s.ensureTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// tableExists reports whether a table of the given name exists, per spec
// §4.3's table_exists(name) contract, used at startup to create tables
// idempotently.
func (s *Store) tableExists(name string) (bool, error) {
	var found string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, name,
	).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: checking table %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) ensureTables() error {
	exists, err := s.tableExists("Connections")
	if err != nil {
		return err
	}
	if !exists {
		s.log.Infof("table Connections doesn't exist; creating")
		if _, err := s.db.Exec(createConnectionsTable); err != nil {
			return fmt.Errorf("store: creating Connections table: %w", err)
		}
	}

	exists, err = s.tableExists("Messages")
	if err != nil {
		return err
	}
	if !exists {
		s.log.Infof("table Messages doesn't exist; creating")
		if _, err := s.db.Exec(createMessagesTable); err != nil {
			return fmt.Errorf("store: creating Messages table: %w", err)
		}
	}
	return nil
}

const createConnectionsTable = `
CREATE TABLE Connections (
	connection_id INTEGER PRIMARY KEY AUTOINCREMENT,
	peer_id INTEGER NOT NULL UNIQUE,
	self_id INTEGER NOT NULL,
	peer_name TEXT NOT NULL,
	peer_addr TEXT NOT NULL,
	online INTEGER NOT NULL DEFAULT 1,
	time_established TEXT NOT NULL
)`

const createMessagesTable = `
CREATE TABLE Messages (
	message_id INTEGER NOT NULL,
	connection_id INTEGER NOT NULL REFERENCES Connections(connection_id),
	time_sent TEXT NOT NULL,
	time_received TEXT,
	content_type TEXT NOT NULL CHECK(content_type IN ('TEXT', 'FILE')),
	content BLOB,
	PRIMARY KEY (connection_id, message_id)
)`

// filePath returns where a FILE message's blob with the given basename is
// stored on disk.
func (s *Store) filePath(basename string) string {
	return filepath.Join(s.filesDir, basename)
}
