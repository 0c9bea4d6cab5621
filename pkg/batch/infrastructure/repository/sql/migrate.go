package sql

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

// MigrationsTable records the applied schema version of the job repository.
const MigrationsTable = "batch_schema_migrations"

//go:embed migrations
var migrationFS embed.FS

// Migrate applies every pending job repository migration for dbType ("sqlite", "mysql" or
// "postgres"). Cancelling ctx stops after the migration in progress.
func Migrate(ctx context.Context, db *gorm.DB, dbType string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	var dbDriver database.Driver
	switch dbType {
	case "postgres":
		dbDriver, err = postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		dbDriver, err = mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		dbDriver, err = sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migration driver: %w", dbType, err)
	}

	sourceDriver, err := iofs.New(migrationFS, "migrations/"+dbType)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for %s: %w", dbType, err)
	}
	// The migrate instance is not closed: closing it would close the shared *sql.DB.
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	logger.Infof("Applying job repository migrations (%s).", dbType)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("job repository migration failed (%s): %w", dbType, err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read job repository schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("job repository schema version %d is dirty", version)
	}
	logger.Infof("Job repository schema is at version %d.", version)
	return ctx.Err()
}
