package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"DealsIngestor/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Store persists processing records, categories and listings in SQL.
// The same queries run on Postgres and SQLite; only placeholders and a
// few column types differ.
type Store struct {
	db      *sqlx.DB
	sb      sq.StatementBuilderType
	dialect dialect
	now     func() time.Time
}

// New wraps an open database. The dialect follows db.DriverName().
func New(db *sqlx.DB) *Store {
	d := dialectFor(db.DriverName())
	return &Store{
		db:      db,
		sb:      sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Open connects, applies the schema and returns a ready store.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch {
	case cfg.Driver == DriverSQLite:
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type dialect struct {
	name        string
	placeholder sq.PlaceholderFormat
}

func dialectFor(driver string) dialect {
	if driver == DriverSQLite {
		return dialect{name: DriverSQLite, placeholder: sq.Question}
	}
	return dialect{name: DriverPostgres, placeholder: sq.Dollar}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
