package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tariff/internal/cli"
	"github.com/Veraticus/tariff/internal/config"
	"github.com/Veraticus/tariff/internal/storage"
)

func migrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on startup; use --status to see where the
database stands without changing it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			current, latest, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if status {
				fmt.Fprintf(out, "Database:        %s\n", cfg.DatabasePath)
				fmt.Fprintf(out, "Current version: %d\n", current)
				fmt.Fprintf(out, "Latest version:  %d\n", latest)
				if current < latest {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d migration(s) pending", latest-current)))
				}
				return nil
			}
			if current >= latest {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Database is up to date (version %d)", current)))
				return nil
			}

			if current > 0 {
				if manager, err := store.NewCheckpointManager(); err == nil {
					if err := manager.AutoCheckpoint(ctx, "migrate"); err != nil {
						slog.Warn("Failed to checkpoint before migration", "error", err)
					}
				}
			}

			slog.Info("Running database migrations", "database", cfg.DatabasePath, "from", current, "to", latest)
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Migrated database to version %d", latest)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show migration status without applying changes")
	return cmd
}
