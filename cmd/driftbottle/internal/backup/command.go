package backup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal"
	"github.com/tinyland-inc/driftbottle/pkg/backup"
	"github.com/tinyland-inc/driftbottle/pkg/config"
)

func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the bottle store",
		Example: `  driftbottle backup run
  driftbottle backup list`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Write a snapshot now and prune old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, m, err := newManager()
			if err != nil {
				return err
			}
			path, err := m.RunNow()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Backup written to %s (keeping %d)\n", path, cfg.Backup.Keep)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, m, err := newManager()
			if err != nil {
				return err
			}
			files, err := m.List()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups yet")
				return nil
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}

	cmd.AddCommand(runCmd, listCmd)
	return cmd
}

func newManager() (*config.Config, *backup.Manager, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	store, err := internal.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	m, err := backup.New(store, backup.Config{
		Cron: cfg.Backup.Cron,
		Dir:  cfg.BackupDir(),
		Keep: cfg.Backup.Keep,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}
