package blacklist

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/db"
	"github.com/sells-group/supplier-verify/internal/model"
)

// PostgresStore keeps each import as a versioned block of rows and points
// blacklist_current at the live version.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE SEQUENCE IF NOT EXISTS blacklist_version_seq;

CREATE TABLE IF NOT EXISTS blacklist_entries (
	version    BIGINT NOT NULL,
	rfc        TEXT NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (version, rfc)
);

CREATE TABLE IF NOT EXISTS blacklist_current (
	id      BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
	version BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS blacklist_imports (
	id          TEXT PRIMARY KEY,
	at          TIMESTAMPTZ NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	total_count INTEGER NOT NULL,
	mode        TEXT NOT NULL,
	version     BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blacklist_entries_rfc ON blacklist_entries(rfc);
CREATE INDEX IF NOT EXISTS idx_blacklist_imports_at ON blacklist_imports(at DESC);
`

// Migrate creates the blacklist tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate blacklist")
}

var entryColumns = []string{"version", "rfc", "last_seen", "source_url"}

func (s *PostgresStore) Replace(ctx context.Context, snap Snapshot) (*model.ImportRecord, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}

	var version int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('blacklist_version_seq')`).Scan(&version); err != nil {
		return nil, eris.Wrap(err, "postgres: next blacklist version")
	}
	rec := snap.record(uuid.NewString(), version)

	rows := make([][]any, 0, len(snap.RFCs))
	for _, e := range snap.entries() {
		rows = append(rows, []any{version, e.RFC, rec.At, e.SourceURL})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "blacklist_entries", entryColumns, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: load blacklist version %d", version)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin blacklist swap")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO blacklist_current (id, version) VALUES (TRUE, $1)
		 ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version`, version); err != nil {
		return nil, eris.Wrap(err, "postgres: swap blacklist pointer")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO blacklist_imports (id, at, source_url, total_count, mode, version)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.At, rec.SourceURL, rec.TotalCount, rec.Mode, rec.Version); err != nil {
		return nil, eris.Wrap(err, "postgres: insert blacklist import")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit blacklist swap")
	}

	// Older versions are unreachable once the pointer moved.
	if _, err := s.pool.Exec(ctx, `DELETE FROM blacklist_entries WHERE version < $1`, version); err != nil {
		zap.L().Warn("blacklist: prune old versions failed",
			zap.Int64("version", version), zap.Error(err))
	}
	return rec, nil
}

func (s *PostgresStore) Contains(ctx context.Context, rfc string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM blacklist_entries e
			JOIN blacklist_current c ON c.version = e.version
			WHERE e.rfc = $1)`, model.NormalizeRFC(rfc)).Scan(&ok)
	if err != nil {
		return false, eris.Wrap(err, "postgres: blacklist contains")
	}
	return ok, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM blacklist_entries e
		 JOIN blacklist_current c ON c.version = e.version`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: blacklist count")
	}
	return n, nil
}

func (s *PostgresStore) LastImport(ctx context.Context) (*model.ImportRecord, error) {
	var rec model.ImportRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, at, source_url, total_count, mode, version
		 FROM blacklist_imports ORDER BY at DESC LIMIT 1`).
		Scan(&rec.ID, &rec.At, &rec.SourceURL, &rec.TotalCount, &rec.Mode, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last blacklist import")
	}
	return &rec, nil
}
