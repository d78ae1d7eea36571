package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"iprompt/internal/app"
	"iprompt/internal/config"
)

var (
	outputFormat string

	cfg         *config.Config
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "iprompt",
	Short: "Personal prompt manager with versioning and LLM translation",
	Long: `iprompt keeps a local library of prompts with categories, tags, content
versions and per-language translations produced by an LLM provider.

Data lives in a single JSON document stored in SQLite, PostgreSQL or a JSON file,
selected with STORAGE_BACKEND. Settings come from the environment and an optional
.env file.`,
	SilenceUsage:       true,
	PersistentPreRunE:  openApp,
	PersistentPostRunE: closeApp,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(
		addCmd, listCmd, showCmd, updateCmd, deleteCmd, versionsCmd, restoreCmd, categoriesCmd,
		translateCmd, retranslateCmd, translationCmd, translatorCmd,
		exportCmd, importCmd, backupCmd, backupsCmd, restoreBackupCmd, usageCmd, migrateCmd, syncLegacyCmd,
		serveCmd,
	)
}

func openApp(cmd *cobra.Command, _ []string) error {
	if outputFormat != "yaml" && outputFormat != "json" {
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = c
	setupLogger(cfg.Log.Level)

	a, err := app.Open(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return err
	}
	if err := a.Start(cmd.Context()); err != nil {
		_ = a.Close(context.Background())
		return err
	}
	application = a
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if application == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := application.Close(ctx)
	application = nil
	return err
}

func output(data any) error {
	return outputTo(os.Stdout, outputFormat, data)
}

func outputTo(w io.Writer, format string, data any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
