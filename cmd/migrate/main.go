// Command migrate applies the SQL files in migrations/ to the PostgreSQL
// database used by the postgres storage backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
)

const (
	directionUp   = "up"
	directionDown = "down"
)

type migration struct {
	version string
	path    string
}

func main() {
	var (
		dsn       string
		dir       string
		direction string
		steps     int
	)
	fs := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	fs.StringVar(&dsn, "dsn", os.Getenv("DW_POSTGRES_DSN"), "PostgreSQL connection string (default $DW_POSTGRES_DSN)")
	fs.StringVar(&dir, "dir", "", "directory holding NNNN_name.{up,down}.sql files (default ./migrations)")
	fs.StringVar(&direction, "direction", directionUp, "migration direction: up or down")
	fs.IntVar(&steps, "steps", 0, "number of migrations to run (0 = all)")
	_ = fs.Parse(os.Args[1:])

	if dsn == "" {
		log.Fatal("DW_POSTGRES_DSN or --dsn is required")
	}
	if direction != directionUp && direction != directionDown {
		log.Fatalf("--direction must be up or down, got %q", direction)
	}

	if err := run(context.Background(), dsn, migrationsDir(dir), direction, steps); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, dsn, dir, direction string, steps int) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	pending, err := plan(dir, direction, applied)
	if err != nil {
		return err
	}
	if steps > 0 && len(pending) > steps {
		pending = pending[:steps]
	}

	for _, m := range pending {
		fmt.Printf("Running migration: %s\n", filepath.Base(m.path))
		if err := apply(ctx, pool, m, direction); err != nil {
			return err
		}
		fmt.Printf("Applied migration: %s\n", m.version)
	}

	if len(pending) == 0 {
		fmt.Println("No migrations to apply")
	} else {
		fmt.Printf("Applied %d migration(s)\n", len(pending))
	}
	return nil
}

// migrationsDir prefers ./migrations and falls back to one next to the
// executable.
func migrationsDir(flagDir string) string {
	if flagDir != "" {
		return flagDir
	}
	if _, err := os.Stat("migrations"); err == nil {
		return "migrations"
	}
	execPath, _ := os.Executable()
	return filepath.Join(filepath.Dir(execPath), "migrations")
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// plan lists the files to run in order: ascending and not yet applied for
// up, descending and applied for down.
func plan(dir, direction string, applied map[string]bool) ([]migration, error) {
	suffix := "." + direction + ".sql"
	files, err := filepath.Glob(filepath.Join(dir, "*"+suffix))
	if err != nil {
		return nil, fmt.Errorf("failed to find migration files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found in " + dir)
	}

	slices.Sort(files)
	if direction == directionDown {
		slices.Reverse(files)
	}

	var out []migration
	for _, f := range files {
		version := strings.TrimSuffix(filepath.Base(f), suffix)
		if applied[version] == (direction == directionUp) {
			continue
		}
		out = append(out, migration{version: version, path: f})
	}
	return out, nil
}

func apply(ctx context.Context, pool *pgxpool.Pool, m migration, direction string) error {
	content, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", m.path, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.path, err)
	}

	if direction == directionUp {
		_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version)
	} else {
		_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.version)
	}
	if err != nil {
		return fmt.Errorf("failed to update migrations table: %w", err)
	}

	return tx.Commit(ctx)
}
