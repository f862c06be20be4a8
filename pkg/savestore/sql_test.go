package savestore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStoreSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	s, err := NewSQLStore(db, SQLite)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Init(context.Background()))
	exerciseStore(t, s)
}

func TestSQLStorePostgresQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s, err := NewSQLStore(db, Postgres)
	require.NoError(t, err)
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cisosim_saves \\(\\s*slot TEXT PRIMARY KEY,\\s*blob BYTEA").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Init(ctx))

	mock.ExpectExec("INSERT INTO cisosim_saves .* ON CONFLICT \\(slot\\) DO UPDATE").
		WithArgs("autosave", []byte("blob"), fixed).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.Put(ctx, "autosave", []byte("blob")))

	mock.ExpectQuery("SELECT blob FROM cisosim_saves WHERE slot = \\$1").
		WithArgs("autosave").
		WillReturnRows(sqlmock.NewRows([]string{"blob"}).AddRow([]byte("blob")))
	got, err := s.Get(ctx, "autosave")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	mock.ExpectQuery("SELECT blob FROM cisosim_saves").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"blob"}))
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("SELECT slot FROM cisosim_saves ORDER BY slot").
		WillReturnRows(sqlmock.NewRows([]string{"slot"}).AddRow("a").AddRow("b"))
	slots, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, slots)

	mock.ExpectExec("DELETE FROM cisosim_saves WHERE slot = \\$1").
		WithArgs("autosave").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(ctx, "autosave"))

	mock.ExpectQuery("SELECT blob").WithArgs("broken").WillReturnError(sql.ErrConnDone)
	_, err = s.Get(ctx, "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLStoreRejectsUnknownDialect(t *testing.T) {
	_, err := NewSQLStore(nil, "oracle")
	assert.Error(t, err)
}
