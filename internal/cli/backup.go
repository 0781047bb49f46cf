package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
	"github.com/spf13/cobra"
)

var (
	backupDescription   string
	backupNoCompression bool
	backupSince         string
	backupListType      string
	backupListStatus    string
	backupListLimit     string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and inspect backups",
	Long:  "Create full, incremental, schema-only or data-only backups (typically used by cron)",
}

// newBackupCommand builds the create subcommand for one backup type
func newBackupCommand(use, short string, backupType domain.BackupType) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := initServices(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			opts := service.BackupOptions{Type: backupType, Description: backupDescription}
			if backupNoCompression {
				disabled := false
				opts.CompressionEnabled = &disabled
			}
			if backupSince != "" {
				since, err := time.Parse(time.RFC3339, backupSince)
				if err != nil {
					return fmt.Errorf("invalid --since value, expected RFC3339: %w", err)
				}
				opts.Since = &since
			}

			backup, err := services.Backups.CreateBackup(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}

			fmt.Printf("Backup %s completed\n", backup.ID)
			printBackup(backup)
			return nil
		},
	}

	cmd.Flags().StringVar(&backupDescription, "description", "", "Backup description")
	cmd.Flags().BoolVar(&backupNoCompression, "no-compression", false, "Store the artifact uncompressed")
	if backupType == domain.BackupTypeIncremental {
		cmd.Flags().StringVar(&backupSince, "since", "", "Capture changes after this RFC3339 time instead of the latest full backup")
	}
	return cmd
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		filter, err := service.ParseBackupFilter(backupListType, backupListStatus, backupListLimit)
		if err != nil {
			return err
		}
		backups, err := services.Backups.ListBackups(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}

		if len(backups) == 0 {
			fmt.Println("No backups found")
			return nil
		}

		w := newTable("ID", "TYPE", "STATUS", "STARTED", "SIZE", "FROM")
		for _, b := range backups {
			size := "-"
			if b.SizeBytes != nil {
				size = fmt.Sprintf("%d", *b.SizeBytes)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				b.ID, b.Type, b.Status, formatTime(&b.StartTime), size, orDash(b.FromBackupID))
		}
		return w.Flush()
	},
}

var backupShowCmd = &cobra.Command{
	Use:   "show <backup-id>",
	Short: "Show one backup and its chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		backup, err := services.Backups.GetBackupMetadata(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printBackup(backup)

		if backup.FromBackupID != nil {
			chain, err := services.Backups.GetBackupChain(cmd.Context(), backup.ID)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(chain))
			for _, b := range chain {
				ids = append(ids, b.ID)
			}
			printField(os.Stdout, "Chain", strings.Join(ids, " -> "))
		}
		return nil
	},
}

func printBackup(b *domain.Backup) {
	printField(os.Stdout, "ID", b.ID)
	printField(os.Stdout, "Type", b.Type)
	printField(os.Stdout, "Status", b.Status)
	printField(os.Stdout, "Description", orDash(b.Description))
	printField(os.Stdout, "Compression", b.Compression)
	printField(os.Stdout, "Started", formatTime(&b.StartTime))
	printField(os.Stdout, "Finished", formatTime(b.EndTime))
	printField(os.Stdout, "Artifact", orDash(b.ArtifactKey))
	printField(os.Stdout, "Checksum", orDash(b.Checksum))
	printField(os.Stdout, "Tables", strings.Join(b.Tables, ", "))
	if b.Error != nil {
		printField(os.Stdout, "Error", *b.Error)
	}
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(newBackupCommand("full", "Create a full backup", domain.BackupTypeFull))
	backupCmd.AddCommand(newBackupCommand("incremental", "Create an incremental backup", domain.BackupTypeIncremental))
	backupCmd.AddCommand(newBackupCommand("schema", "Create a schema-only backup", domain.BackupTypeSchemaOnly))
	backupCmd.AddCommand(newBackupCommand("data", "Create a data-only backup", domain.BackupTypeDataOnly))
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupShowCmd)

	backupListCmd.Flags().StringVar(&backupListType, "type", "", "Only list backups of this type")
	backupListCmd.Flags().StringVar(&backupListStatus, "status", "", "Only list backups with this status")
	backupListCmd.Flags().StringVar(&backupListLimit, "limit", "", "Maximum number of backups")
}
