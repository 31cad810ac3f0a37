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
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/inbox-ai-platform/internal/config"
	appmigrations "github.com/wolfman30/inbox-ai-platform/migrations"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const usage = "usage: migrate [up | down <steps> | force <version> | version]"

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	m, closeFn, err := openMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	if err := run(os.Args[1:], m, logger); err != nil {
		logger.Error("migration failed", "error", err)
		closeFn()
		os.Exit(1)
	}
}

func openMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("migrate: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: ping db: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: postgres driver: %w", err)
	}
	source, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: embedded source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: new migrator: %w", err)
	}
	var closed bool
	return m, func() {
		if !closed {
			closed = true
			_, _ = m.Close()
		}
	}, nil
}

// run executes one command. No arguments means "up".
func run(args []string, m migrator, logger *logging.Logger) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("schema already up to date")
				return logVersion(m, logger)
			}
			return fmt.Errorf("up: %w", err)
		}
		logger.Info("migrations applied")
		return logVersion(m, logger)
	case "down":
		steps, err := intArg(args, "steps")
		if err != nil {
			return err
		}
		if steps <= 0 {
			return fmt.Errorf("down: steps must be positive, got %d", steps)
		}
		if err := m.Steps(-steps); err != nil {
			return fmt.Errorf("down %d: %w", steps, err)
		}
		logger.Info("migrations rolled back", "steps", steps)
		return logVersion(m, logger)
	case "force":
		version, err := intArg(args, "version")
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force %d: %w", version, err)
		}
		logger.Warn("schema version forced", "version", version)
		return nil
	case "version":
		return logVersion(m, logger)
	default:
		return fmt.Errorf("unknown command %q; %s", cmd, usage)
	}
}

func intArg(args []string, name string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s: missing %s; %s", args[0], name, usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: invalid %s %q: %w", args[0], name, args[1], err)
	}
	return n, nil
}

func logVersion(m migrator, logger *logging.Logger) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if dirty {
		logger.Warn("schema is dirty; fix the failed migration and force a version", "version", version)
		return nil
	}
	logger.Info("schema version", "version", version)
	return nil
}
