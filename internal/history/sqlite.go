package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"prism/internal/api"
	"prism/internal/logging"
)

// SQLiteStore is the on-disk history cache.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	limit int
}

// OpenSQLite opens (creating if needed) the history database at path.
// ":memory:" gives a private in-memory store.
func OpenSQLite(path string, limit int) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryHistory, "OpenSQLite")
	defer timer.Stop()

	if limit < 1 {
		limit = DefaultLimit
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryHistory).Debugf("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryHistory).Debugf("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &SQLiteStore{db: db, path: path, limit: limit}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.History("history store ready at %s (limit %d)", path, limit)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		sources TEXT NOT NULL DEFAULT '[]',
		context TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_type ON history(type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Append stores r and evicts the oldest records beyond the limit in the
// same transaction. Missing ID and Timestamp are filled in.
func (s *SQLiteStore) Append(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.Type == "" {
		r.Type = TypeDocument
	}
	if r.Sources == nil {
		r.Sources = []api.Source{}
	}
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return Record{}, fmt.Errorf("encode sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (id, type, query, response, sources, context, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Type), r.Query, r.Response, string(sources), r.Context, r.Timestamp.UnixNano(),
	); err != nil {
		return Record{}, fmt.Errorf("insert history record: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE seq NOT IN (SELECT seq FROM history ORDER BY seq DESC LIMIT ?)`,
		s.limit,
	)
	if err != nil {
		return Record{}, fmt.Errorf("evict history records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit append: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Get(logging.CategoryHistory).Debugw("evicted old records", "count", n)
	}
	return r, nil
}

// List returns matching records newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Query != "" {
		where = append(where, "(instr(lower(query), lower(?)) > 0 OR instr(lower(response), lower(?)) > 0)")
		args = append(args, f.Query, f.Query)
	}

	q := `SELECT id, type, query, response, sources, context, created_at FROM history`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		var typ, sources string
		var ts int64
		if err := rows.Scan(&r.ID, &typ, &r.Query, &r.Response, &sources, &r.Context, &ts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Type = Type(typ)
		r.Timestamp = time.Unix(0, ts)
		if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
			r.Sources = []api.Source{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes one record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete history record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	logging.History("history cleared")
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
