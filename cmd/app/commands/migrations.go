package commands

import (
	"fmt"
	"log/slog"

	"github.com/allisson/topogate/internal/config"
	"github.com/allisson/topogate/internal/database"
)

// RunMigrations applies the keystore schema for the SQL keystore backends.
// The file backend has no schema and is rejected.
func RunMigrations(logger *slog.Logger, backend, driver, connectionString string) error {
	if backend == config.KeystoreBackendFile {
		return fmt.Errorf("keystore backend %q has no migrations", backend)
	}

	if err := database.RunMigrations(logger, driver, connectionString); err != nil {
		return err
	}

	logger.Info("migrations completed successfully")
	return nil
}
