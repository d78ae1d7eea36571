package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"iprompt/internal/storage"
)

var exportFile string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the stored document as JSON",
	Long: `Export the stored document as indented JSON. Without --file the document is
written to iprompt-export-YYYY-MM-DD.json in the working directory; --file - writes
to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, err := application.Export(cmd.Context())
		if err != nil {
			return err
		}
		if exportFile == "-" {
			_, err := cmd.OutOrStdout().Write(raw)
			return err
		}
		path := exportFile
		if path == "" {
			path = storage.ExportFileName(time.Now())
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		return output(map[string]any{"file": path, "bytes": len(raw)})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace all data with an exported document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()
		doc, err := application.Import(cmd.Context(), f)
		if err != nil {
			return err
		}
		return output(map[string]any{"prompts": len(doc.Prompts), "categories": doc.Categories})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the data file (file backend only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := application.CreateBackup(cmd.Context())
		if err != nil {
			return err
		}
		return output(map[string]string{"backup": path})
	},
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		list, err := application.ListBackups(cmd.Context())
		if err != nil {
			return err
		}
		return output(list)
	},
}

var restoreBackupCmd = &cobra.Command{
	Use:   "restore-backup <id>",
	Short: "Replace the data file with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.RestoreBackup(cmd.Context(), args[0]); err != nil {
			return err
		}
		return output(map[string]any{"restored": args[0], "prompts": application.Store.Len()})
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show storage usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		u, err := application.Usage(cmd.Context())
		if err != nil {
			return err
		}
		return output(u)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move legacy data into the current store when it is empty",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		migrated, err := application.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		return output(map[string]bool{"migrated": migrated})
	},
}

var syncLegacyCmd = &cobra.Command{
	Use:   "sync-legacy",
	Short: "Merge legacy data into the current prompts by id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := application.SyncLegacy(cmd.Context())
		if err != nil {
			return err
		}
		return output(res)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "output path, - for stdout")
}
