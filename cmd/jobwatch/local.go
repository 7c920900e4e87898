package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobwatch/internal/config"
	"github.com/kalambet/jobwatch/internal/sites"
	"github.com/kalambet/jobwatch/internal/storage"
	"github.com/kalambet/jobwatch/internal/tui"
)

// Commands in this file open the store directly. The store has a single
// owner, so they refuse to run next to a server.

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive watchlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serverRunning(cfg) {
			return fmt.Errorf("jobwatch server is running on port %d; stop it first or use the sites commands", cfg.Server.Port)
		}

		// The terminal belongs to the UI, so logs go to a file.
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		logPath := filepath.Join(cfg.Storage.DataDir, "jobwatch-ui.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()
		logger := newLogger(cfg, logFile)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg, closeStore, err := openRegistry(ctx, cfg, logger, os.Stderr)
		if err != nil {
			return err
		}
		defer closeStore()

		exportDir, _ := cmd.Flags().GetString("export-dir")
		if exportDir == "" {
			if exportDir, err = os.Getwd(); err != nil {
				return err
			}
		}
		return tui.Run(ctx, reg, tui.Options{ExportDir: exportDir})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a saved watchlist (JSON array of sites)",
	Long: `Import a saved watchlist.

The file holds a JSON array of sites in the stored format, such as the
jobhunter_sites value saved by the browser version of the app. Sites whose
id is already in the watchlist are skipped; --replace discards the current
watchlist first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		replace, _ := cmd.Flags().GetBool("replace")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serverRunning(cfg) {
			return fmt.Errorf("jobwatch server is running on port %d; stop it before importing", cfg.Server.Port)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		imported, err := sites.DecodeRegistry(data)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		backend, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		snapshots := storage.NewSnapshots(backend).WithLogger(newLogger(cfg, os.Stderr))
		var current []sites.Entry
		if !replace {
			current = snapshots.Load(ctx)
		}
		merged, skipped := mergeImport(current, imported)
		snapshots.Save(ctx, merged)

		printSuccess("Imported %d sites (%d total)", len(imported)-skipped, len(merged))
		if skipped > 0 {
			printWarning("Skipped %d sites already in the watchlist", skipped)
		}
		return nil
	},
}

func init() {
	uiCmd.Flags().String("export-dir", "", "directory for exported reports (default: working directory)")
	importCmd.Flags().Bool("replace", false, "replace the current watchlist instead of merging")
}

// mergeImport appends imported entries to current, skipping ids that are
// already present. It returns the merged list and the number skipped.
func mergeImport(current, imported []sites.Entry) ([]sites.Entry, int) {
	seen := make(map[string]bool, len(current))
	for _, e := range current {
		seen[e.ID] = true
	}
	merged := append([]sites.Entry(nil), current...)
	skipped := 0
	for _, e := range imported {
		if seen[e.ID] {
			skipped++
			continue
		}
		seen[e.ID] = true
		merged = append(merged, e)
	}
	return merged, skipped
}
