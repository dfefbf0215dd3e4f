package store

import (
	"database/sql"
	"embed"

	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrateUp applies every pending migration to db. The migrate instance is
// not closed because its driver would close db with it.
func migrateUp(db *sql.DB, log logger.Logger) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.PersistenceError(errors.CodeMigrationFailed, "load migrations", err)
	}
	defer src.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return errors.PersistenceError(errors.CodeMigrationFailed, "init migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return errors.PersistenceError(errors.CodeMigrationFailed, "init migrator", err)
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			return nil
		}
		return errors.PersistenceError(errors.CodeMigrationFailed, "apply migrations", err)
	}

	if version, dirty, err := m.Version(); err == nil {
		log.WithFields(logger.Fields{"version": version, "dirty": dirty}).Info("Applied database migrations")
	}
	return nil
}
