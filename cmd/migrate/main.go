package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/shiza/internal/config"
	"github.com/example/shiza/internal/migrations"
)

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
	)
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fatal("config error", err)
	}

	if cfg.DBAdapter != "postgres" {
		fatal("migrations only work with PostgreSQL", fmt.Errorf("current adapter: %s", cfg.DBAdapter))
	}

	dsn, err := cfg.BuildPostgresDSN()
	if err != nil {
		fatal("postgres config error", err)
	}

	switch *command {
	case "up":
		if *steps > 0 {
			err = migrations.Steps(dsn, *steps)
		} else {
			err = migrations.Up(dsn)
		}
		if err != nil {
			fatal("migration up failed", err)
		}
		fmt.Println("✓ Migrations applied successfully")
	case "down":
		if err := migrations.Steps(dsn, -*steps); err != nil {
			fatal("migration down failed", err)
		}
		fmt.Println("✓ Migrations rolled back successfully")
	case "version":
		v, dirty, err := migrations.Version(dsn)
		if err != nil {
			fatal("failed to get version", err)
		}
		if dirty {
			fmt.Printf("⚠ Database is in a dirty state (version %d)\n", v)
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			fatal("version required for force command", fmt.Errorf("use -version flag"))
		}
		if err := migrations.Force(dsn, int(*version)); err != nil {
			fatal("force migration failed", err)
		}
		fmt.Printf("✓ Forced database to version %d\n", *version)
	default:
		fatal("unknown command", fmt.Errorf("%s (supported: up, down, version, force)", *command))
	}
}
