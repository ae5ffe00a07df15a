package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded up migrations.
func RunMigrations(dbPath string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	return migrateUp(dbPath, func(driver migratedb.Driver) (*migrate.Migrate, error) {
		return migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	})
}

// RunMigrationsFromDir applies up migrations found at dir instead of the
// embedded set.
func RunMigrationsFromDir(dbPath, dir string) error {
	return migrateUp(dbPath, func(driver migratedb.Driver) (*migrate.Migrate, error) {
		return migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", dir), "sqlite3", driver)
	})
}

// migrateUp uses its own connection: closing the migrator closes the
// database handle it was given.
func migrateUp(dbPath string, build func(migratedb.Driver) (*migrate.Migrate, error)) error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath))
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		_ = db.Close()
		return err
	}
	m, err := build(driver)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
