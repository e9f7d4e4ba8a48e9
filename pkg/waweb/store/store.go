// Package store persists message records in SQLite. The schema is a
// single messages table keyed by the protocol id; writes use INSERT OR
// REPLACE so redelivery of the same event updates the row in place.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"
)

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// BufferSize bounds the in-memory message log. Zero means the
	// default.
	BufferSize int `yaml:"buffer_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Path: "./data/messages.db"}
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	from_addr   TEXT NOT NULL,
	to_addr     TEXT NOT NULL,
	body        TEXT NOT NULL,
	sent_at     INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	is_group    INTEGER NOT NULL DEFAULT 0,
	author      TEXT NOT NULL DEFAULT '',
	notify_name TEXT NOT NULL DEFAULT '',
	from_me     INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages(sent_at);
CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_addr);
`

// Store is the durable message log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. The parent
// directory is created first so a fresh install can boot on defaults.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening message store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating message schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertMessage inserts or replaces a record by id.
func (s *Store) UpsertMessage(rec *message.Record) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO messages
			(id, from_addr, to_addr, body, sent_at, kind,
			 is_group, author, notify_name, from_me, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE((SELECT processed FROM messages WHERE id = ?), ?))`,
		rec.ID,
		rec.From,
		rec.To,
		rec.Body,
		rec.Timestamp,
		string(rec.Kind),
		boolToInt(rec.IsGroup),
		rec.Author,
		rec.NotifyName,
		boolToInt(rec.FromMe),
		rec.ID,
		boolToInt(rec.Processed),
	)
	if err != nil {
		return fmt.Errorf("upsert message %q: %w", rec.ID, err)
	}
	return nil
}

// MarkProcessed flags a record as answered by a successful reply.
func (s *Store) MarkProcessed(id string) error {
	res, err := s.db.Exec("UPDATE messages SET processed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark processed %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark processed %q: no such message", id)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]*message.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(selectColumns+" ORDER BY sent_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// SearchCriteria filters Search. Zero values are ignored.
type SearchCriteria struct {
	From     string `json:"from"`
	Contains string `json:"contains"`
	Kind     string `json:"kind"`
	Since    int64  `json:"since"` // epoch seconds, inclusive
	Until    int64  `json:"until"` // epoch seconds, inclusive
	Limit    int    `json:"limit"`
}

// Search returns records matching the criteria, newest first.
func (s *Store) Search(c SearchCriteria) ([]*message.Record, error) {
	var (
		conds []string
		args  []any
	)
	if c.From != "" {
		conds = append(conds, "from_addr = ?")
		args = append(args, c.From)
	}
	if c.Contains != "" {
		conds = append(conds, "body LIKE ?")
		args = append(args, "%"+c.Contains+"%")
	}
	if c.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, c.Kind)
	}
	if c.Since > 0 {
		conds = append(conds, "sent_at >= ?")
		args = append(args, c.Since)
	}
	if c.Until > 0 {
		conds = append(conds, "sent_at <= ?")
		args = append(args, c.Until)
	}

	query := selectColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY sent_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Stats summarizes the message log.
type Stats struct {
	Total     int64            `json:"total"`
	ByKind    map[string]int64 `json:"by_kind"`
	FromMe    int64            `json:"from_me"`
	Groups    int64            `json:"groups"`
	Processed int64            `json:"processed"`
	Oldest    int64            `json:"oldest,omitempty"` // epoch seconds
	Newest    int64            `json:"newest,omitempty"` // epoch seconds
}

// Stats computes aggregate counts over the whole log.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{ByKind: make(map[string]int64)}

	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(from_me), 0),
		       COALESCE(SUM(is_group), 0),
		       COALESCE(SUM(processed), 0),
		       COALESCE(MIN(sent_at), 0),
		       COALESCE(MAX(sent_at), 0)
		FROM messages`)
	if err := row.Scan(&st.Total, &st.FromMe, &st.Groups, &st.Processed, &st.Oldest, &st.Newest); err != nil {
		return nil, fmt.Errorf("message stats: %w", err)
	}

	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM messages GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("message stats by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		st.ByKind[kind] = count
	}
	return st, rows.Err()
}

// PruneBefore deletes records sent before cutoff (epoch seconds) and
// returns how many were removed.
func (s *Store) PruneBefore(cutoff int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM messages WHERE sent_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const selectColumns = `
	SELECT id, from_addr, to_addr, body, sent_at, kind,
	       is_group, author, notify_name, from_me, processed
	FROM messages`

// scanRecords reads rows into records.
func scanRecords(rows *sql.Rows) ([]*message.Record, error) {
	var recs []*message.Record
	for rows.Next() {
		var (
			rec                       message.Record
			kind                      string
			isGroup, fromMe, procFlag int
		)
		if err := rows.Scan(
			&rec.ID, &rec.From, &rec.To, &rec.Body, &rec.Timestamp, &kind,
			&isGroup, &rec.Author, &rec.NotifyName, &fromMe, &procFlag,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.Kind = message.Kind(kind)
		rec.IsGroup = isGroup != 0
		rec.FromMe = fromMe != 0
		rec.Processed = procFlag != 0
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
