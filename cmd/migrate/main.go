// Command migrate applies the postgres billing schema. sqlite databases are
// auto-migrated by the server and never go through here.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/migration"
	"github.com/edubill/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var errUsage = errors.New("usage")

// schemaCommand runs against a live migrator; args excludes the command name
type schemaCommand func(m *migration.Migrator, args []string, log *zap.Logger) error

var schemaCommands = map[string]schemaCommand{
	"up":   func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Up() },
	"down": func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Down() },
	"step": func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		n, err := intArg(args, "step count")
		if err != nil {
			return err
		}
		return m.Steps(n)
	},
	"goto": func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		n, err := intArg(args, "version")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: version must not be negative", errUsage)
		}
		return m.GoTo(uint(n))
	},
	"force": func(m *migration.Migrator, args []string, log *zap.Logger) error {
		n, err := intArg(args, "version")
		if err != nil {
			return err
		}
		log.Warn("Forcing schema version; the dirty flag is cleared", zap.Int("version", n))
		return m.Force(n)
	},
	"version": func(m *migration.Migrator, _ []string, log *zap.Logger) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if v == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	},
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s required", errUsage, what)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errUsage, what, args[0])
	}
	return n, nil
}

func main() {
	dir := flag.String("path", "", "Migrations directory (default: migrations compiled into the binary)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(args[0], args[1:], *dir, log); err != nil {
		if errors.Is(err, errUsage) {
			log.Error("Bad invocation", zap.String("command", args[0]), zap.Error(err))
			printUsage()
			os.Exit(1)
		}
		log.Fatal("Migration failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(command string, args []string, dir string, log *zap.Logger) error {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve migrations path: %w", err)
		}
		dir = abs
	}
	source := dir
	if source == "" {
		source = "embedded"
	}
	log.Info("Migration CLI started", zap.String("command", command), zap.String("source", source))

	switch command {
	case "create":
		return create(dir, args, log)
	case "list":
		return list(dir, log)
	}

	cmd, ok := schemaCommands[command]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("driver %q: schema migrations target postgres only", cfg.Database.Driver)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, dir, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return cmd(m, args, log)
}

func create(dir string, args []string, log *zap.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: migration name required", errUsage)
	}
	if dir == "" {
		dir = "migrations"
	}
	var description string
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description, time.Now().UTC())
	if err != nil {
		return err
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func list(dir string, log *zap.Logger) error {
	var fsys fs.FS = migrations.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	names, err := migration.ListMigrations(fsys)
	if err != nil {
		return err
	}
	log.Info("Available migrations", zap.Int("count", len(names)))
	for _, n := range names {
		fmt.Println("  -", n)
	}
	return nil
}

func printUsage() {
	fmt.Println(`Billing schema migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show the current schema version
  force <version>       Set the version without running migrations
  create <name> [desc]  Write a new up/down migration pair
  list                  List available migrations

Flags:
  -path string          Migrations directory (default: embedded)
  -log-level string     debug, info, warn or error (default: info)

Environment:
  EDUBILL_DATABASE_HOST, EDUBILL_DATABASE_PORT, EDUBILL_DATABASE_USER,
  EDUBILL_DATABASE_PASSWORD, EDUBILL_DATABASE_DBNAME, EDUBILL_DATABASE_SSLMODE`)
}
