package blacklist

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/supplier-verify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS blacklist_entries (
	version    INTEGER NOT NULL,
	rfc        TEXT NOT NULL,
	last_seen  DATETIME NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (version, rfc)
);

CREATE TABLE IF NOT EXISTS blacklist_current (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS blacklist_imports (
	id          TEXT PRIMARY KEY,
	at          DATETIME NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	total_count INTEGER NOT NULL,
	mode        TEXT NOT NULL,
	version     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blacklist_entries_rfc ON blacklist_entries(rfc);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Replace(ctx context.Context, snap Snapshot) (*model.ImportRecord, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin blacklist replace")
	}
	defer tx.Rollback() //nolint:errcheck

	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM blacklist_imports`).Scan(&version); err != nil {
		return nil, eris.Wrap(err, "sqlite: next blacklist version")
	}
	rec := snap.record(uuid.NewString(), version)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO blacklist_entries (version, rfc, last_seen, source_url) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare blacklist insert")
	}
	defer stmt.Close()
	for _, e := range snap.entries() {
		if _, err := stmt.ExecContext(ctx, version, e.RFC, rec.At, e.SourceURL); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert blacklist entry %s", e.RFC)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blacklist_current (id, version) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET version = excluded.version`, version); err != nil {
		return nil, eris.Wrap(err, "sqlite: swap blacklist pointer")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blacklist_imports (id, at, source_url, total_count, mode, version)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.At, rec.SourceURL, rec.TotalCount, rec.Mode, rec.Version); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert blacklist import")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM blacklist_entries WHERE version < ?`, version); err != nil {
		return nil, eris.Wrap(err, "sqlite: prune blacklist versions")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit blacklist replace")
	}
	return rec, nil
}

func (s *SQLiteStore) Contains(ctx context.Context, rfc string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM blacklist_entries e
			JOIN blacklist_current c ON c.version = e.version
			WHERE e.rfc = ?)`, model.NormalizeRFC(rfc)).Scan(&ok)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: blacklist contains")
	}
	return ok, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM blacklist_entries e
		 JOIN blacklist_current c ON c.version = e.version`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: blacklist count")
	}
	return n, nil
}

func (s *SQLiteStore) LastImport(ctx context.Context) (*model.ImportRecord, error) {
	var rec model.ImportRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, at, source_url, total_count, mode, version
		 FROM blacklist_imports ORDER BY version DESC LIMIT 1`).
		Scan(&rec.ID, &rec.At, &rec.SourceURL, &rec.TotalCount, &rec.Mode, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last blacklist import")
	}
	return &rec, nil
}
