package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS videos (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					transcript TEXT,
					channel_name TEXT NOT NULL DEFAULT '',
					duration_seconds INTEGER NOT NULL DEFAULT 0,
					view_count INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					collected_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS products (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					video_id TEXT NOT NULL,
					name TEXT NOT NULL,
					normalized_name TEXT NOT NULL,
					price INTEGER,
					rounded_price INTEGER NOT NULL,
					category TEXT,
					keywords TEXT NOT NULL DEFAULT '[]',
					confidence REAL NOT NULL DEFAULT 0,
					recommended BOOLEAN NOT NULL DEFAULT 1,
					raw_quote TEXT,
					timestamp_seconds INTEGER,
					timestamp_method TEXT,
					ordinal INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (video_id, normalized_name, rounded_price)
				)`,
				`CREATE INDEX idx_products_video ON products(video_id, ordinal)`,

				`CREATE TABLE IF NOT EXISTS catalog_entries (
					domain TEXT NOT NULL,
					id TEXT NOT NULL,
					name TEXT NOT NULL,
					price INTEGER NOT NULL DEFAULT 0,
					category TEXT NOT NULL DEFAULT '',
					popularity INTEGER NOT NULL DEFAULT 0,
					is_best BOOLEAN NOT NULL DEFAULT 0,
					image_url TEXT NOT NULL DEFAULT '',
					product_url TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (domain, id)
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add catalog match columns to products",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE products ADD COLUMN match_catalog_id TEXT`,
				`ALTER TABLE products ADD COLUMN match_total REAL`,
				`ALTER TABLE products ADD COLUMN match_confidence REAL`,
				`ALTER TABLE products ADD COLUMN needs_review BOOLEAN NOT NULL DEFAULT 0`,
				`CREATE INDEX idx_products_review ON products(needs_review)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Add timestamp index and checkpoint metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE INDEX idx_products_missing_timestamp ON products(video_id) WHERE timestamp_seconds IS NULL`,
				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN DEFAULT 0
				)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, version)
	}

	return nil
}

// SchemaVersion reports the applied migration version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
