// Package testutil provides shared database fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff/internal/service"
	"github.com/Veraticus/tariff/internal/storage"
)

// SetupTestDB creates a migrated, file-backed database in a temp directory.
// File backing keeps checkpoints usable; the database is closed on cleanup.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "tariff.db"))
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.Migrate(context.Background()), "failed to run migrations")

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// WithTransaction runs fn inside a transaction that is always rolled back.
func WithTransaction(ctx context.Context, db service.Storage, fn func(tx service.Transaction) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}
