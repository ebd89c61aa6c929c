package sourcemeta

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// SQLiteStore keeps one row per source in a WAL-mode SQLite database.
// It is safe for concurrent use.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and applies the
// schema. ":memory:" gives a throwaway database for tests.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sourcemeta: open %q: %w", path, err)
	}

	// SQLite allows only one writer at a time.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{`PRAGMA journal_mode = WAL`, `PRAGMA synchronous = NORMAL`, ddl} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sourcemeta: init %q: %w", path, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

const ddl = `
CREATE TABLE IF NOT EXISTS source_meta (
    source_id  TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

func (s *SQLiteStore) Load(ctx context.Context) (map[string]*Data, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, data FROM source_meta`)
	if err != nil {
		return nil, fmt.Errorf("sourcemeta: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Data)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("sourcemeta: scan: %w", err)
		}
		d, err := Unmarshal([]byte(raw))
		if err != nil {
			s.logger.Warn("skipping source meta", slog.String("source_id", id), slog.Any("error", err))
			continue
		}
		out[d.SourceID] = &d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sourcemeta: load: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, d *Data) error {
	raw, err := Marshal(*d)
	if err != nil {
		return fmt.Errorf("sourcemeta: encode %s: %w", d.SourceID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_meta (source_id, data) VALUES (?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
		     data = excluded.data,
		     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		d.SourceID, string(raw))
	if err != nil {
		return fmt.Errorf("sourcemeta: save %s: %w", d.SourceID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sourceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM source_meta WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("sourcemeta: delete %s: %w", sourceID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
