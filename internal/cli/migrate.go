package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage schema migrations",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		report, err := services.Migrations.GetMigrationStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load migration status: %w", err)
		}

		w := newTable("VERSION", "NAME", "STATUS", "APPLIED AT", "NOTE")
		for _, m := range report.Migrations {
			status := "pending"
			if m.Status != nil {
				status = string(*m.Status)
			}
			note := orDash(m.Error)
			if m.Drifted {
				note = "checksum drift"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Version, m.Name, status, formatTime(m.AppliedAt), note)
		}
		for _, m := range report.Missing {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Version, m.Name, m.Status, formatTime(m.AppliedAt), "definition missing")
		}
		return w.Flush()
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		applied, err := services.Migrations.RunPendingMigrations(cmd.Context())
		for _, version := range applied {
			fmt.Printf("Applied migration %s\n", version)
		}
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if len(applied) == 0 {
			fmt.Println("Nothing to migrate")
		}
		return nil
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback <version>",
	Short: "Roll back an applied migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		if err := services.Migrations.RollbackMigration(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Printf("Rolled back migration %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
}
