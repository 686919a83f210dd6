// Package migrations embeds the processed_events schema for every supported
// driver and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql sqlite/*.sql mysql/*.sql
var files embed.FS

var ErrUnknownDriver = errors.New("no migrations for driver")

// New returns a migrate instance bound to db. The caller must not Close it
// when db is still in use, since closing the driver closes db.
func New(db *sql.DB, driver string) (*migrate.Migrate, error) {
	const op = "migrations.New"

	dir, err := Dir(driver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: open source: %w", op, err)
	}

	var dbDriver database.Driver
	switch dir {
	case "postgres":
		dbDriver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	case "mysql":
		dbDriver, err = mysql.WithInstance(db, &mysql.Config{})
	default:
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: database driver: %w", op, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dir, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return m, nil
}

// Up applies all pending migrations. An already current schema is not an error.
func Up(db *sql.DB, driver string) error {
	const op = "migrations.Up"

	m, err := New(db, driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Dir maps a database/sql driver name to its migration directory.
func Dir(driver string) (string, error) {
	switch driver {
	case "pgx", "pgx/v5", "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite3":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
