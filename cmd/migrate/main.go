package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/folio/folio-backend/internal/config"
	"github.com/folio/folio-backend/internal/db/backends/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	dir   = flags.String("dir", "", "directory with migration files (default: embedded migrations)")
)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		log.Fatal("Usage: migrate [-dir DIR] COMMAND\n\nCommands:\n  up\n  down\n  status\n  version")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}

	migrations := *dir
	if migrations == "" {
		goose.SetBaseFS(postgres.MigrationsFS)
		migrations = postgres.MigrationsDir
	}

	command := args[0]
	switch command {
	case "up":
		if err := goose.Up(db, migrations); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
	case "down":
		if err := goose.Down(db, migrations); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
	case "status":
		if err := goose.Status(db, migrations); err != nil {
			log.Fatalf("Migration status failed: %v", err)
		}
	case "version":
		if err := goose.Version(db, migrations); err != nil {
			log.Fatalf("Migration version failed: %v", err)
		}
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
