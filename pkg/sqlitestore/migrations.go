package sqlitestore

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// EnsureMigrations brings the database at dbPath up to the latest schema.
// It opens its own handle, since the migrate driver closes the database it
// is given.
func EnsureMigrations(dbPath string) error {
	sqliteDb, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(sqliteDb, &sqlite3.Config{})
	if err != nil {
		sqliteDb.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("migration setup: %w", err)
	}
	log.Info().Str("dbPath", dbPath).Msg("bringing up migration")
	upErr := m.Up()
	e1, e2 := m.Close()
	log.Err(e1).Msg("close-source")
	log.Err(e2).Msg("close-database")
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", upErr)
	}
	return nil
}
