package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"gigsnap/internal/config"
	"gigsnap/internal/logging"
	"gigsnap/migrations"
)

func main() {
	logger := logging.New(logging.Config{Level: "info", Format: "text"})

	if len(os.Args) < 2 {
		logger.Fatal(errors.New("missing command"), "usage: migrate up|down|version|force <version>")
	}

	dsn, err := databaseURL()
	if err != nil {
		logger.Fatal(err, "resolve database url")
	}

	m, err := newMigrator(dsn)
	if err != nil {
		logger.Fatal(err, "prepare migrations")
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal(err, "apply migrations")
		}
		logger.Info("migrations applied")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal(err, "roll back migrations")
		}
		logger.Info("migrations rolled back")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			logger.Fatal(err, "read schema version")
		}
		logger.Info(fmt.Sprintf("schema version %d (dirty=%t)", version, dirty))
	case "force":
		if len(os.Args) != 3 {
			logger.Fatal(errors.New("missing version"), "usage: migrate force <version>")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.Fatal(err, "parse version")
		}
		if err := m.Force(version); err != nil {
			logger.Fatal(err, "force schema version")
		}
		logger.Info(fmt.Sprintf("schema version forced to %d", version))
	default:
		logger.Fatal(fmt.Errorf("unknown command %q", os.Args[1]), "usage: migrate up|down|version|force <version>")
	}
}

// databaseURL reuses the application's DATABASE_URL / DB_* resolution without
// requiring the unrelated service settings.
func databaseURL() (string, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return "", err
	}
	if cfg.URL == "" {
		return "", errors.New("DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}
	return cfg.URL, nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}
