package pgstore

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// EnsureMigrations brings the database at connStr up to the latest schema.
func EnsureMigrations(connStr string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(connStr))
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	log.Info().Msg("bringing up migration")
	upErr := m.Up()
	e1, e2 := m.Close()
	log.Err(e1).Msg("close-source")
	log.Err(e2).Msg("close-database")
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", upErr)
	}
	return nil
}
