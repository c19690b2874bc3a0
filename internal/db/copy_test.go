package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "blacklist_entries", []string{"version", "rfc"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"blacklist_entries"}, []string{"version", "rfc"}).WillReturnResult(2)

	rows := [][]any{{int64(1), "AAA010101AAA"}, {int64(1), "BBB020202BBB"}}
	n, err := CopyFrom(context.Background(), mock, "blacklist_entries", []string{"version", "rfc"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"blacklist_entries"}, []string{"rfc"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "blacklist_entries", []string{"rfc"}, [][]any{{"AAA010101AAA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO blacklist_entries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_BadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "://not-a-dsn", PoolConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: parse config")
}

var _ Pool = pgxmock.PgxPoolIface(nil)
