package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/jobwatch/internal/api"
	"github.com/kalambet/jobwatch/internal/config"
	"github.com/kalambet/jobwatch/internal/ollama"
	"github.com/kalambet/jobwatch/internal/registry"
	"github.com/kalambet/jobwatch/internal/scan"
	"github.com/kalambet/jobwatch/internal/storage"
	"github.com/kalambet/jobwatch/internal/watch"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the jobwatch server (foreground)",
	Long: `Start the jobwatch server in the foreground.

The REST API listens on 127.0.0.1. With --mcp the server also speaks MCP
over stdin/stdout so that an MCP client can launch it directly. When
watch.schedule is set, all sites are scanned on that schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running jobwatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show jobwatch status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jobwatch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func healthURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/health", port)
}

// serverRunning reports whether a jobwatch server answers on the configured port.
func serverRunning(cfg config.Config) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthURL(cfg.Server.Port))
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel()}))
}

// buildScanner creates the configured scan provider. The local provider
// needs a running Ollama with the model pulled; progress goes to w.
func buildScanner(ctx context.Context, cfg config.Config, w io.Writer) (scan.Scanner, error) {
	s, err := scan.New(scan.Options{
		Provider:      cfg.Scan.Provider,
		Model:         cfg.Scan.Model,
		Language:      cfg.Scan.Language,
		Timeout:       cfg.ScanTimeout(),
		GeminiAPIKey:  cfg.Scan.GeminiAPIKey,
		OpenAIAPIKey:  cfg.Scan.OpenAIAPIKey,
		OllamaBaseURL: cfg.Ollama.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	if l, ok := s.(*scan.Local); ok {
		if err := ollama.EnsureReady(ctx, l.Client(), l.Model(), w); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	backend, err := storage.OpenBackend(ctx, storage.Options{
		Backend:  cfg.Storage.Backend,
		DataDir:  cfg.Storage.DataDir,
		RedisURL: cfg.Storage.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return backend, nil
}

// openRegistry wires storage and the scan provider into a Registry. The
// returned close function releases the store.
func openRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger, progress io.Writer) (*registry.Registry, func(), error) {
	scanner, err := buildScanner(ctx, cfg, progress)
	if err != nil {
		return nil, nil, err
	}

	backend, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := backend.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}

	snapshots := storage.NewSnapshots(backend).WithLogger(logger)
	reg := registry.New(ctx, scanner, snapshots, registry.WithLogger(logger))
	return reg, closeStore, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "jobwatch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	if serverRunning(cfg) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("jobwatch is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("jobwatch is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, closeStore, err := openRegistry(ctx, cfg, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer closeStore()
	slog.Info("registry loaded", "sites", len(reg.List()), "provider", cfg.Scan.Provider, "backend", cfg.Storage.Backend)

	var watcher *watch.Watcher
	if cfg.Watch.Schedule != "" {
		if watcher, err = watch.New(cfg.Watch.Schedule, reg, logger); err != nil {
			return err
		}
	}

	// Bulk scans started over HTTP run past their request; closeStore must
	// wait for them.
	var bulkScans sync.WaitGroup
	handler := api.NewHandler(api.Deps{
		Registry:    reg,
		Token:       apiToken,
		ScanContext: ctx,
		BulkScans:   &bulkScans,
		Logger:      logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "jobwatch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown with timeout.
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Registry: reg, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	err = g.Wait()
	if reg.BulkScanning() {
		fmt.Fprintln(os.Stderr, "waiting for the current scan to finish...")
	}
	bulkScans.Wait()
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("jobwatch is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop jobwatch (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to jobwatch (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	running := serverRunning(cfg)
	if running {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "stopped")
	}

	model := cfg.Scan.Model
	if model == "" {
		model = "default"
	}
	printStatus("Provider", "%s (%s)", cfg.Scan.Provider, model)

	if cfg.Scan.Provider == scan.ProviderLocal {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if ollama.New(cfg.Ollama.BaseURL).IsRunning(checkCtx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
		cancel()
	}

	if cfg.Watch.Schedule != "" {
		printStatus("Schedule", "%s", cfg.Watch.Schedule)
	} else {
		printStatus("Schedule", "off")
	}

	if running {
		if client, err := newAPIClient(); err == nil {
			if list, err := listSites(ctx, client); err == nil {
				printStatus("Sites", "%d", len(list))
			}
			if bulk, err := bulkScanning(ctx, client); err == nil && bulk {
				printStatus("Bulk scan", "in progress")
			}
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
