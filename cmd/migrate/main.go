package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/erp/realty/internal/infrastructure/config"
	"github.com/erp/realty/internal/infrastructure/logger"
	"github.com/erp/realty/internal/infrastructure/migration"
	"github.com/erp/realty/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		dir      string
		logLevel string
		confirm  bool
	)
	flag.StringVar(&dir, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&confirm, "confirm", false, "Confirm destructive commands (drop)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
		Service:    "realty-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	var source fs.FS = migrations.FS
	if dir != "" {
		source = os.DirFS(dir)
	}

	// Commands that never touch the database
	switch command {
	case "create":
		if dir == "" {
			log.Fatal("create writes files on disk; pass -path")
		}
		if len(args) < 2 {
			log.Fatal("Migration name required. Usage: migrate -path <dir> create <name> [description]")
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(dir, args[1], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created",
			zap.Uint("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return
	case "list":
		list, err := migration.ListMigrations(source)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		for _, m := range list {
			fmt.Println("  -", m.BaseName())
		}
		if err := migration.Validate(source); err != nil {
			log.Fatal("Migration set is inconsistent", zap.Error(err))
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	m, err := migration.New(db, source, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "step":
		n, convErr := strconv.Atoi(argAt(args, 1, log, "step <n>"))
		if convErr != nil {
			log.Fatal("Invalid step count", zap.String("value", args[1]))
		}
		err = m.Steps(n)
	case "goto":
		v, convErr := strconv.ParseUint(argAt(args, 1, log, "goto <version>"), 10, 32)
		if convErr != nil {
			log.Fatal("Invalid version number", zap.String("value", args[1]))
		}
		err = m.GoTo(uint(v))
	case "version", "status":
		status, statusErr := m.Status()
		if statusErr != nil {
			log.Fatal("Failed to read schema status", zap.Error(statusErr))
		}
		log.Info("Schema status",
			zap.Uint("version", status.Version),
			zap.Bool("dirty", status.Dirty),
			zap.Int("pending", status.Pending),
		)
	case "force":
		v, convErr := strconv.Atoi(argAt(args, 1, log, "force <version>"))
		if convErr != nil {
			log.Fatal("Invalid version number", zap.String("value", args[1]))
		}
		err = m.Force(v)
	case "drop":
		if !confirm {
			log.Fatal("Drop cancelled. Use 'migrate -confirm drop' to confirm.")
		}
		err = m.Drop()
	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("Migration command failed", zap.String("command", command), zap.Error(err))
	}
}

func argAt(args []string, i int, log *zap.Logger, usage string) string {
	if len(args) <= i {
		log.Fatal("Missing argument. Usage: migrate " + usage)
	}
	return args[i]
}

func printUsage() {
	fmt.Println(`Realty engine schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  status                Show applied version and pending count
  force <version>       Set the version without running migrations
  drop                  Drop all database objects (needs -confirm)
  create <name> [desc]  Create the next numbered migration pair (needs -path)
  list                  List and validate migrations

Flags:
  -path string          Migrations directory (default: embedded set)
  -log-level string     debug, info, warn, error (default: info)
  -confirm              Confirm drop

Connection settings come from ERP_DATABASE_* environment variables.`)
}
