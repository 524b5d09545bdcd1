package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/auditflow/auditflow/internal/config"
)

type migrationFile struct {
	version int
	name    string
	path    string
	kind    string // up or down
}

func main() {
	mode := flag.String("mode", "up", "migration mode: up, down or status")
	dir := flag.String("dir", "", "migrations directory (defaults to DB_MIGRATIONS_PATH)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *dir == "" {
		*dir = cfg.Database.MigrationsPath
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := ensureSchemaMigrations(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema_migrations: %v", err)
	}

	files, err := loadMigrationFiles(*dir)
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}

	switch strings.ToLower(*mode) {
	case "up":
		if err := applyUp(ctx, db, files); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("Migration up completed successfully")
	case "down":
		if err := applyDown(ctx, db, files); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("Migration down completed successfully")
	case "status":
		if err := printStatus(ctx, db, files); err != nil {
			log.Fatalf("migration status failed: %v", err)
		}
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

func ensureSchemaMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)

		var kind string
		switch {
		case strings.HasSuffix(lower, ".up.sql"):
			kind = "up"
		case strings.HasSuffix(lower, ".down.sql"):
			kind = "down"
		default:
			continue
		}

		ver, migName, err := parseVersionAndName(name)
		if err != nil {
			log.Printf("skip migration without version prefix: %s", name)
			continue
		}

		files = append(files, migrationFile{
			version: ver,
			name:    migName,
			path:    filepath.Join(dir, name),
			kind:    kind,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// parseVersionAndName splits 000001_init.up.sql into 1 and "init"
func parseVersionAndName(filename string) (int, string, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return 0, "", errors.New("invalid filename")
	}
	ver, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid version: %w", err)
	}
	name := strings.TrimSuffix(strings.TrimSuffix(parts[1], ".up.sql"), ".down.sql")
	return ver, name, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyUp(ctx context.Context, db *sql.DB, files []migrationFile) error {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.kind != "up" || applied[f.version] {
			continue
		}
		log.Printf("Applying up %06d: %s", f.version, f.name)
		err := runInTx(ctx, db, f.path, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations(version, name) VALUES($1, $2)", f.version, f.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed applying %s: %w", f.path, err)
		}
	}
	return nil
}

func applyDown(ctx context.Context, db *sql.DB, files []migrationFile) error {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	var downs []migrationFile
	for _, f := range files {
		if f.kind == "down" {
			downs = append(downs, f)
		}
	}
	sort.Slice(downs, func(i, j int) bool { return downs[i].version > downs[j].version })

	for _, f := range downs {
		if !applied[f.version] {
			continue
		}
		log.Printf("Reverting down %06d: %s", f.version, f.name)
		err := runInTx(ctx, db, f.path, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", f.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed reverting %s: %w", f.path, err)
		}
	}
	return nil
}

func printStatus(ctx context.Context, db *sql.DB, files []migrationFile) error {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.kind != "up" {
			continue
		}
		state := "pending"
		if applied[f.version] {
			state = "applied"
		}
		fmt.Printf("%06d %-40s %s\n", f.version, f.name, state)
	}
	return nil
}

// runInTx executes a SQL file and its bookkeeping atomically
func runInTx(ctx context.Context, db *sql.DB, path string, record func(tx *sql.Tx) error) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := record(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
