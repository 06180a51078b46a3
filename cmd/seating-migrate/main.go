package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-seating/internal/database/migrations"
	"ms-seating/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "seating-migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	var (
		dsn  string
		dir  string
		seed bool
		down bool
	)
	flagSet := pflag.NewFlagSet("seating-migrate", pflag.ContinueOnError)
	flagSet.StringVar(&dsn, "dsn", os.Getenv("POSTGRES_DSN"), "postgres connection string (default: $POSTGRES_DSN)")
	flagSet.StringVar(&dir, "dir", envOr("MIGRATIONS_DIR", "./migrations"), "directory holding the SQL migrations")
	flagSet.BoolVar(&seed, "seed", false, "also apply the demo layout seed")
	flagSet.BoolVar(&down, "down", false, "roll back every migration instead")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if dsn == "" {
		return fmt.Errorf("no database configured: pass --dsn or set POSTGRES_DSN")
	}

	log := logger.NewConsoleLogger(os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()
	if err := sqldb.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: dir, SeedData: seed}, log)
	defer runner.Close()

	if down {
		log.Info("MIGRATE", "Rolling back all migrations")
		return runner.MigrateDown()
	}
	if err := runner.RunMigrations(); err != nil {
		return err
	}

	var seats int
	if err := bunDB.NewSelect().Table("seats").ColumnExpr("count(*)").Scan(ctx, &seats); err != nil {
		return fmt.Errorf("count seats: %w", err)
	}
	log.Info("MIGRATE", fmt.Sprintf("Done, %d seats present", seats))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
