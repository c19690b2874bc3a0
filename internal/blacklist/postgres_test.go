package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS blacklist_entries").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Replace(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	snap := NewSnapshot("https://example.test/list.csv", importAt, []string{"BBB020202BBB", "AAA010101AAA"})

	mock.ExpectQuery(`SELECT nextval\('blacklist_version_seq'\)`).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectCopyFrom(pgx.Identifier{"blacklist_entries"}, entryColumns).WillReturnResult(2)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO blacklist_current").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO blacklist_imports").
		WithArgs(pgxmock.AnyArg(), importAt, "https://example.test/list.csv", 2, "replace", int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM blacklist_entries WHERE version < \$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	rec, err := st.Replace(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Version)
	assert.Equal(t, 2, rec.TotalCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Replace_CopyFailureLeavesPointer(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	snap := NewSnapshot("u", importAt, []string{"AAA010101AAA"})

	mock.ExpectQuery("nextval").
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(3)))
	mock.ExpectCopyFrom(pgx.Identifier{"blacklist_entries"}, entryColumns).
		WillReturnError(errors.New("disk full"))

	_, err := st.Replace(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load blacklist version 3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Replace_Empty(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	_, err := st.Replace(context.Background(), Snapshot{})
	assert.ErrorIs(t, err, ErrEmptySnapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Contains(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("AAA010101AAA").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := st.Contains(context.Background(), " aaa010101aaa")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Count(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery("SELECT count").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(10433))

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10433, n)
}

func TestPostgres_LastImport(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	at := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM blacklist_imports").
		WillReturnRows(pgxmock.NewRows([]string{"id", "at", "source_url", "total_count", "mode", "version"}).
			AddRow("imp-1", at, "u", 5, "replace", int64(2)))

	rec, err := st.LastImport(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "imp-1", rec.ID)
	assert.Equal(t, 5, rec.TotalCount)
	assert.Equal(t, int64(2), rec.Version)
}

func TestPostgres_LastImport_None(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery("FROM blacklist_imports").WillReturnError(pgx.ErrNoRows)

	rec, err := st.LastImport(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}
