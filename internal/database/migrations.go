package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationsDir returns the embedded migrations directory for driver.
func MigrationsDir(driver string) (string, error) {
	switch driver {
	case "postgres", "postgresql":
		return "migrations/postgresql", nil
	case "mysql":
		return "migrations/mysql", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// MigrateURL converts a database/sql connection string into the URL form golang-migrate expects.
func MigrateURL(driver, connectionString string) string {
	if driver == "mysql" && !strings.HasPrefix(connectionString, "mysql://") {
		return "mysql://" + connectionString
	}
	return connectionString
}

// RunMigrations applies all pending keystore migrations for driver.
// Returns nil when the schema is already up to date.
func RunMigrations(logger *slog.Logger, driver, connectionString string) error {
	dir, err := MigrationsDir(driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(driver, connectionString))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Error("failed to close migration source", slog.Any("error", sourceErr))
		}
		if dbErr != nil {
			logger.Error("failed to close migration database", slog.Any("error", dbErr))
		}
	}()

	logger.Info("running database migrations", slog.String("driver", driver))

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}
