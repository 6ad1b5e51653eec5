package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// Run applies the embedded schema for the dialect behind conn.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB, conn.Dialector.Name())
}

// RunMigrations is idempotent; an up-to-date schema is not an error.
func RunMigrations(db *sql.DB, dialect string) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	dir, driver, err := driverFor(db, dialect)
	if err != nil {
		return err
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir+"/"+dir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, dir, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.
	return nil
}

func driverFor(db *sql.DB, dialect string) (string, database.Driver, error) {
	switch dialect {
	case "postgres":
		driver, err := postgres.WithInstance(db, &postgres.Config{})
		return "postgres", driver, wrapDriverErr(err)
	case "mysql":
		driver, err := mysql.WithInstance(db, &mysql.Config{})
		return "mysql", driver, wrapDriverErr(err)
	case "sqlite", "sqlite3":
		driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		return "sqlite", driver, wrapDriverErr(err)
	default:
		return "", nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

func wrapDriverErr(err error) error {
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	return nil
}
