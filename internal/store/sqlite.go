package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	ts         INTEGER NOT NULL,
	text       TEXT NOT NULL,
	language   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS glossary (
	source TEXT PRIMARY KEY,
	target TEXT NOT NULL
);
`

// SQLite backs both the transcript log and the glossary with a single file
// database.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc's driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Append(ctx context.Context, sessionID string, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (session_id, seq, ts, text, language)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transcripts WHERE session_id = ?), ?, ?, ?)`,
		sessionID, sessionID, rec.Timestamp.UnixMilli(), rec.Text, rec.Language)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *SQLite) ReadAll(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, text, language FROM transcripts
		WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(&ts, &rec.Text, &rec.Language); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Terms(ctx context.Context) ([]Term, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, target FROM glossary ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	defer rows.Close()

	var out []Term
	for rows.Next() {
		var t Term
		if err := rows.Scan(&t.Source, &t.Target); err != nil {
			return nil, fmt.Errorf("scan glossary: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PutTerm inserts or replaces one glossary entry.
func (s *SQLite) PutTerm(ctx context.Context, t Term) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO glossary (source, target) VALUES (?, ?)
		ON CONFLICT(source) DO UPDATE SET target = excluded.target`,
		t.Source, t.Target)
	if err != nil {
		return fmt.Errorf("put glossary term: %w", err)
	}
	return nil
}
