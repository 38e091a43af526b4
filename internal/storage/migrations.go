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

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS classification_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					run_type TEXT NOT NULL CHECK (run_type IN ('single', 'bulk')),
					status TEXT NOT NULL,
					input TEXT NOT NULL DEFAULT '{}',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_runs_user ON classification_runs(user_id, created_at)`,
				`CREATE INDEX idx_runs_status ON classification_runs(status)`,

				`CREATE TABLE IF NOT EXISTS clarification_messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id INTEGER NOT NULL,
					step TEXT NOT NULL,
					type TEXT NOT NULL CHECK (type IN ('question', 'user_response')),
					content TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (run_id) REFERENCES classification_runs(id)
				)`,
				`CREATE INDEX idx_messages_run ON clarification_messages(run_id, id)`,

				`CREATE TABLE IF NOT EXISTS user_settings (
					user_id TEXT PRIMARY KEY,
					confidence_threshold REAL NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Products, classification results and candidates",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS products (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					run_id INTEGER NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL,
					country_of_origin TEXT NOT NULL DEFAULT '',
					materials TEXT NOT NULL DEFAULT '[]',
					unit_cost REAL,
					vendor TEXT NOT NULL DEFAULT '',
					sku TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					FOREIGN KEY (run_id) REFERENCES classification_runs(id)
				)`,
				`CREATE INDEX idx_products_user ON products(user_id)`,
				`CREATE UNIQUE INDEX idx_products_run ON products(run_id)`,

				`CREATE TABLE IF NOT EXISTS classification_results (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					product_id INTEGER NOT NULL,
					run_id INTEGER NOT NULL,
					hts_code TEXT NOT NULL,
					confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
					alternate_classification TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					tariff_rate REAL,
					tariff_amount REAL,
					total_cost REAL,
					reasoning TEXT NOT NULL DEFAULT '',
					classified_at DATETIME NOT NULL,
					FOREIGN KEY (product_id) REFERENCES products(id),
					FOREIGN KEY (run_id) REFERENCES classification_runs(id)
				)`,
				`CREATE INDEX idx_results_product ON classification_results(product_id)`,
				`CREATE INDEX idx_results_confidence ON classification_results(confidence)`,
				`CREATE UNIQUE INDEX idx_results_run ON classification_results(run_id)`,

				`CREATE TABLE IF NOT EXISTS classification_candidates (
					result_id INTEGER NOT NULL,
					position INTEGER NOT NULL,
					hts TEXT NOT NULL,
					score REAL NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					reasoning TEXT NOT NULL DEFAULT '',
					tariff_rate REAL,
					PRIMARY KEY (result_id, position),
					FOREIGN KEY (result_id) REFERENCES classification_results(id) ON DELETE CASCADE
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Approvals, run audit trail and checkpoint metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS approvals (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					classification_result_id INTEGER NOT NULL UNIQUE,
					user_id TEXT NOT NULL,
					approved INTEGER NOT NULL,
					chosen_hts TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					FOREIGN KEY (classification_result_id) REFERENCES classification_results(id)
				)`,

				`CREATE TABLE IF NOT EXISTS run_status_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id INTEGER NOT NULL,
					from_status TEXT NOT NULL,
					to_status TEXT NOT NULL,
					changed_at DATETIME NOT NULL,
					FOREIGN KEY (run_id) REFERENCES classification_runs(id)
				)`,
				`CREATE INDEX idx_run_history_run ON run_status_history(run_id, id)`,

				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					row_counts TEXT,
					schema_version INTEGER,
					file_size INTEGER,
					is_auto BOOLEAN DEFAULT 0,
					parent_checkpoint TEXT
				)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
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

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the applied schema version and the latest known one.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (current, latest int, err error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return 0, 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	if n := len(migrations); n > 0 {
		latest = migrations[n-1].Version
	}
	return current, latest, nil
}
