// internal/storage/init.go
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"

	"stdimage/internal/logging"
)

const migrationPath = "migrations"

//go:embed migrations/*.sql
var migrations embed.FS

func runMigrations(db *sql.DB) error {
	const op = "storage.migrations"

	log := logging.GetLogger("storage")

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := goose.Up(db, migrationPath)
	if err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("database migrations applied")
	return nil
}
