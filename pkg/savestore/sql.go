package savestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Dialect selects the DDL for an SQL backend. Queries are shared: both drivers accept
// $n placeholders and ON CONFLICT upserts.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// SQLStore keeps saves in a single table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore wraps an open database. Call Init before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case SQLite, Postgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect, now: time.Now}, nil
}

// OpenSQL opens dsn with the driver registered for dialect.
func OpenSQL(dialect Dialect, dsn string) (*sql.DB, error) {
	driver := "sqlite"
	if dialect == Postgres {
		driver = "postgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	return db, nil
}

func (s *SQLStore) schema() string {
	blobType := "BLOB"
	if s.dialect == Postgres {
		blobType = "BYTEA"
	}
	return `
CREATE TABLE IF NOT EXISTS cisosim_saves (
	slot TEXT PRIMARY KEY,
	blob ` + blobType + ` NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`
}

// Init creates the table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.schema())
	return err
}

func (s *SQLStore) Put(ctx context.Context, slot string, blob []byte) error {
	if err := ValidSlot(slot); err != nil {
		return err
	}
	query := `
		INSERT INTO cisosim_saves (slot, blob, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (slot) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, slot, blob, s.now().UTC()); err != nil {
		return fmt.Errorf("sql put failed: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidSlot(slot); err != nil {
		return nil, err
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM cisosim_saves WHERE slot = $1`, slot).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql get failed: %w", err)
	}
	return blob, nil
}

func (s *SQLStore) Delete(ctx context.Context, slot string) error {
	if err := ValidSlot(slot); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cisosim_saves WHERE slot = $1`, slot); err != nil {
		return fmt.Errorf("sql delete failed: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot FROM cisosim_saves ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("sql list failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
