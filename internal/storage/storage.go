// Package storage implements the SQLite-backed node store: the node tree,
// archive blobs, notes, comments, icons, the word index, and the tag
// dictionary.
package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid          TEXT NOT NULL UNIQUE,
	parent_id     INTEGER NOT NULL DEFAULT 0,
	type          INTEGER NOT NULL,
	pos           INTEGER NOT NULL DEFAULT 0,
	name          TEXT NOT NULL DEFAULT '',
	uri           TEXT NOT NULL DEFAULT '',
	icon          TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '',
	tag_list      TEXT NOT NULL DEFAULT '[]',
	details       TEXT NOT NULL DEFAULT '',
	todo_state    INTEGER NOT NULL DEFAULT 0,
	todo_date     TEXT NOT NULL DEFAULT '',
	date_added    INTEGER NOT NULL DEFAULT 0,
	date_modified INTEGER NOT NULL DEFAULT 0,
	stored_icon   INTEGER NOT NULL DEFAULT 0,
	has_notes     INTEGER NOT NULL DEFAULT 0,
	has_comments  INTEGER NOT NULL DEFAULT 0,
	external      TEXT NOT NULL DEFAULT '',
	external_id   TEXT NOT NULL DEFAULT '',
	container     TEXT NOT NULL DEFAULT '',
	content_type  TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
CREATE INDEX IF NOT EXISTS idx_nodes_external ON nodes(external, external_id);

CREATE TABLE IF NOT EXISTS blobs (
	node_id     INTEGER PRIMARY KEY,
	data        BLOB,
	byte_length INTEGER NOT NULL DEFAULT 0,
	type        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS search_index (
	node_id INTEGER NOT NULL,
	kind    INTEGER NOT NULL,
	word    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_word ON search_index(kind, word);
CREATE INDEX IF NOT EXISTS idx_search_node ON search_index(node_id);

CREATE TABLE IF NOT EXISTS notes (
	node_id INTEGER PRIMARY KEY,
	content TEXT NOT NULL DEFAULT '',
	format  TEXT NOT NULL DEFAULT '',
	html    TEXT NOT NULL DEFAULT '',
	align   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS comments (
	node_id  INTEGER PRIMARY KEY,
	comments TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS icons (
	node_id  INTEGER PRIMARY KEY,
	data_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);
`

// Storage wraps a sql.DB with node store operations.
type Storage struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database, applies the schema, and
// seeds the default shelf on first use.
func Open(dsn string) (*Storage, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	s := &Storage{conn: conn}
	if err := s.seedDefaultShelf(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.conn.Close()
}

func (s *Storage) seedDefaultShelf() error {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM nodes WHERE id = ?`, DefaultShelfID).Scan(&n)
	if err != nil {
		return fmt.Errorf("storage: seed check: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.conn.Exec(`
		INSERT INTO nodes (id, uuid, type, name, pos, date_added, date_modified)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		DefaultShelfID, DefaultShelfUUID, NodeShelf, DefaultShelfName,
		nowMillis(), nowMillis())
	if err != nil {
		return fmt.Errorf("storage: seed default shelf: %w", err)
	}
	return nil
}
