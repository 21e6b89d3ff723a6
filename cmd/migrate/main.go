package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/odyssey-erp/produce-ledger/internal/app"
	"github.com/odyssey-erp/produce-ledger/internal/platform/db"
)

func main() {
	steps := flag.Int("steps", 0, "apply n migrations (negative rolls back) instead of the command")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [-steps n] up|down|version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "migrate"))

	migrator, err := db.NewMigrator(cfg.MigrationsPath, cfg.PGDSN, logger)
	if err != nil {
		logger.Error("init migrator", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()

	if err := run(migrator, *steps, flag.Arg(0), logger); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(m *db.Migrator, steps int, command string, logger *slog.Logger) error {
	if steps != 0 {
		return m.Steps(steps)
	}
	switch command {
	case "", "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
