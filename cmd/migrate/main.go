package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/yourusername/webhookrelay/internal/config"
	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/store"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", err)
		os.Exit(1)
	}
	defer pool.Close()

	migrationsDir := "./migrations"
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		migrationsDir = dir
	}

	if err := runSQLMigrations(ctx, pool, migrationsDir, log); err != nil {
		log.Error("failed to run SQL migrations", err)
		os.Exit(1)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		log.Error("failed to create river migrator", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		log.Error("failed to run river migrations", err)
		os.Exit(1)
	}

	if err := os.WriteFile("/tmp/migration_complete", []byte("done"), 0644); err != nil {
		log.Warn("failed to create migration completion flag")
	}

	log.Info("all migrations completed successfully")
	log.Info("migration service will keep running for healthcheck")

	select {}
}

func runSQLMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string, log logging.Logger) error {
	// Create migrations table if not exists
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	// Get migration files
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}

	// Filter and sort up migration files
	var upMigrations []string
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".up.sql") {
			upMigrations = append(upMigrations, file.Name())
		}
	}
	sort.Strings(upMigrations)

	// Run each migration
	for _, fileName := range upMigrations {
		version := strings.TrimSuffix(fileName, ".up.sql")

		// Check if migration already applied
		var count int
		err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
		if err != nil {
			return err
		}

		if count > 0 {
			log.With(map[string]interface{}{"version": version}).Debug("migration already applied, skipping")
			continue
		}

		// Read migration file
		content, err := os.ReadFile(filepath.Join(migrationsDir, fileName))
		if err != nil {
			return err
		}

		// Execute migration
		_, err = pool.Exec(ctx, string(content))
		if err != nil {
			return err
		}

		// Record migration
		_, err = pool.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
		if err != nil {
			return err
		}

		log.With(map[string]interface{}{"version": version}).Info("applied migration")
	}

	return nil
}
