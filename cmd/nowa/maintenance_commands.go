package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"nowa-go/internal/app"
	"nowa-go/internal/config"
	"nowa-go/internal/errs"
)

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a new configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, _ := cmd.Flags().GetString("archive")
		sources, _ := cmd.Flags().GetStringSlice("source")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path, err := configPath()
		if err != nil {
			return err
		}

		cfg := config.NewConfig(archive, sources, defaults["key_dir"])
		// Validate a resolved copy. The file gets absolute roots but keeps
		// the archive-relative data paths.
		probe := *cfg
		probe.IngestionPaths = append([]string(nil), cfg.IngestionPaths...)
		if err := probe.Resolve(); err != nil {
			return err
		}
		cfg.ArchivePath = probe.ArchivePath
		cfg.IngestionPaths = probe.IngestionPaths

		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", path)
		fmt.Fprintf(cmd.OutOrStdout(), "Archive: %s\n", probe.ArchivePath)
		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", probe.DBPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "# Configuration from %s\n", path)
		m := &config.Manager{Format: config.FormatForPath(path)}
		return m.Write(cmd.OutOrStdout(), cfg)
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the backup encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt database backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		passphrase, err := readNewPassphrase(cmd)
		if err != nil {
			return err
		}
		if err := app.InitKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Public key:  %s\n", cfg.Backup.PublicKeyPath)
		fmt.Fprintf(cmd.OutOrStdout(), "Private key: %s (passphrase protected)\n", cfg.Backup.PrivateKeyPath)
		if !cfg.Backup.Encrypt {
			fmt.Fprintln(cmd.OutOrStdout(), "Set backup.encrypt = true to encrypt database backups.")
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Back up and restore the archive database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent snapshot of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, _, err := newApp(app.Options{Operation: "db-backup", ReadOnly: true})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		written, err := a.BackupDatabase(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database backed up to %s (%s)\n", written, fileSize(written))
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP DEST",
	Short: "Restore a database backup to a new file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var passphrase string
		if app.NeedsPassphrase(args[0]) {
			if passphrase, err = readPassphrase(cmd, "Passphrase: "); err != nil {
				return err
			}
		}
		dest, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving destination: %w", err)
		}
		if err := app.RestoreBackup(cfg, args[0], dest, passphrase); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s (%s)\n", args[0], dest, fileSize(dest))
		return nil
	},
}

// merge command
var mergeCmd = &cobra.Command{
	Use:   "merge PRIMARY SECONDARY",
	Short: "Fold the SECONDARY database into PRIMARY",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Without a config there is no archive to lock.
		cfg, err := loadConfig()
		if errors.Is(err, errs.ErrNotFound) {
			cfg = nil
		} else if err != nil {
			return err
		}
		report, err := app.MergeDatabases(cmd.Context(), cfg, args[0], args[1], verboseFlag)
		if report != nil {
			fmt.Fprintln(cmd.OutOrStdout(), renderMergeReport(report))
		}
		if err != nil {
			return fmt.Errorf("merge failed: %w", err)
		}
		return nil
	},
}

// migrate-legacy command
var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy SRC DST",
	Short: "Convert a flat-schema database into a new normalized one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.MigrateLegacy(cmd.Context(), args[0], args[1], verboseFlag)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderLegacyReport(report))
		return nil
	},
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "size unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("archive", "", "Archive root directory")
	configInitCmd.Flags().StringSlice("source", nil, "Source root to ingest from (repeatable)")
	configInitCmd.MarkFlagRequired("archive")
	configInitCmd.MarkFlagRequired("source")
	configCmd.AddCommand(configShowCmd)

	keysCmd.AddCommand(keysInitCmd)

	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbRestoreCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(migrateLegacyCmd)
}
