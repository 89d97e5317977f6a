// Package persistence opens the bun handle for a DSN and applies the
// embedded goose migrations for its dialect.
package persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DefaultDSN is a local sqlite file
const DefaultDSN = "file:gabriel.db?cache=shared&_fk=1"

// gooseUpContext is a seam for testing goose.UpContext
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// DialectFor picks the migration dialect for a DSN
func DialectFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open returns a bun handle for dsn. postgres:// URLs use pgx, anything
// else is handed to sqlite.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultDSN
	}

	var (
		db  *bun.DB
		err error
	)

	switch DialectFor(dsn) {
	case DialectPostgres:
		db, err = openPostgres(dsn)
	default:
		db, err = openSQLite(dsn)
	}
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CategoryOperation, "database unreachable").
			WithMetadata(map[string]any{"dialect": DialectFor(dsn)})
	}

	return db, nil
}

func openPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open postgres")
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func openSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite")
	}
	if strings.Contains(dsn, ":memory:") {
		sqldb.SetMaxOpenConns(1)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate applies every pending migration for the handle's dialect
func Migrate(ctx context.Context, db *bun.DB) error {
	name, gooseDialect := DialectSQLite, "sqlite3"
	if db.Dialect().Name() == dialect.PG {
		name, gooseDialect = DialectPostgres, "pgx"
	}

	migrations, err := gabriel.DialectMigrations(name)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to load migrations")
	}

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unsupported migration dialect")
	}

	if err := gooseUpContext(ctx, db.DB, "."); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "migration failed").
			WithMetadata(map[string]any{"dialect": name})
	}
	return nil
}
