package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up | down | status | redo   goose command against the configured database
  to <YYYYMMDDHHMMSS>         move up or down to an exact version
  create <name>               write an empty migration into -dir
  validate                    check migration filenames and goose headers

flags:
`

type dbCommand func(ctx context.Context, sqlDB *sql.DB, dir string, args []string) ([]migrate.Step, error)

var dbCommands = map[string]dbCommand{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"redo":   gooseCommand("redo"),
	"to": func(ctx context.Context, sqlDB *sql.DB, dir string, args []string) ([]migrate.Step, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("to requires exactly one version argument")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dir, args[0])
	},
}

func gooseCommand(name string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB, dir string, _ []string) ([]migrate.Step, error) {
		return migrate.Run(ctx, sqlDB, dir, name)
	}
}

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory; the default runs the embedded set")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	// Offline commands run without config so they work in CI.
	switch command {
	case "create":
		if len(args) != 1 {
			fail("create requires a migration name")
		}
		path, err := migrate.CreateSQLMigration(*dir, args[0])
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("invalid migrations:\n%v", err)
		}
		fmt.Println("migrations ok")
		return
	}

	run, ok := dbCommands[command]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"command": command,
		"dir":     *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "sql handle unavailable", err)
		os.Exit(1)
	}

	steps, err := run(ctx, sqlDB, *dir, args)
	for _, step := range steps {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     step.Version,
			"path":        step.Path,
			"state":       step.State,
			"duration_ms": step.Duration.Milliseconds(),
		}), "migration")
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		dbClient.Close()
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "steps", len(steps)), "migration complete")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
