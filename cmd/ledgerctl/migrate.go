package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/ledgermatch/internal/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		Long: `Bring the database schema up to the latest version.

With --down N the last N migrations are rolled back instead; --status only
prints the applied version.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Int("down", 0, "roll back this many migrations")
	cmd.Flags().Bool("status", false, "print the applied schema version and exit")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	down, _ := cmd.Flags().GetInt("down")
	status, _ := cmd.Flags().GetBool("status")

	if down < 0 {
		return fmt.Errorf("--down must not be negative, got %d", down)
	}

	db, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	switch {
	case status:
	case down > 0:
		slog.Info("rolling back migrations", "steps", down)

		if err := database.MigrateDown(db, down); err != nil {
			return err
		}
	default:
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	version, dirty, err := database.MigrationVersion(db)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if version == 0 {
		fmt.Fprintln(out, "schema version: none")
		return nil
	}

	fmt.Fprintf(out, "schema version: %d", version)

	if dirty {
		fmt.Fprint(out, warnStyle.Render(" (dirty: last migration failed, fix manually)"))
	}

	fmt.Fprintln(out)

	return nil
}
