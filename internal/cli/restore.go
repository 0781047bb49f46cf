package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/spf13/cobra"
)

var (
	restoreType      string
	restoreTables    []string
	restoreTarget    string
	restoreValidate  bool
	restorePreBackup bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a completed backup",
	Long: `Restore a completed backup into the live database or, with --target, into a
scratch database next to the backup directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		restore, err := services.Restores.RestoreFromBackup(cmd.Context(), &domain.RestoreRequest{
			BackupID:                  args[0],
			RestoreType:               domain.RestoreType(restoreType),
			SelectedTables:            restoreTables,
			ValidateBeforeRestore:     restoreValidate,
			CreateBackupBeforeRestore: restorePreBackup,
			TargetDatabase:            restoreTarget,
		})
		if err != nil {
			var domainErr *domain.Error
			if errors.As(err, &domainErr) && len(domainErr.AppliedTables) > 0 {
				fmt.Fprintf(os.Stderr, "Tables restored before the failure: %s\n", strings.Join(domainErr.AppliedTables, ", "))
			}
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restore %d completed\n", restore.ID)
		printField(os.Stdout, "Backup", restore.BackupID)
		printField(os.Stdout, "Type", restore.RestoreType)
		printField(os.Stdout, "Target", restore.Target)
		printField(os.Stdout, "Pre-restore backup", orDash(restore.PreRestoreBackupID))
		printField(os.Stdout, "Tables", strings.Join(restore.AppliedTables, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restoreType, "type", string(domain.RestoreTypeFull), "Restore type: full, schema_only, data_only or selective")
	restoreCmd.Flags().StringSliceVar(&restoreTables, "tables", nil, "Tables to restore (selective restores)")
	restoreCmd.Flags().StringVar(&restoreTarget, "target", "", "Scratch database name instead of the live database")
	restoreCmd.Flags().BoolVar(&restoreValidate, "validate", true, "Verify the artifact checksum before restoring")
	restoreCmd.Flags().BoolVar(&restorePreBackup, "pre-backup", false, "Take a full backup of the live database first")
}
