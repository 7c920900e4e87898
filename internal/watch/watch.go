// Package watch runs bulk scans on a cron schedule while the server is up.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/kalambet/jobwatch/internal/registry"
)

// BulkScanner is the part of the registry the watcher drives.
type BulkScanner interface {
	ScanAll(ctx context.Context) (registry.Summary, error)
}

// Watcher fires ScanAll on a schedule such as "@every 6h" or "0 8 * * 1-5".
// A tick that arrives while the previous one still runs is skipped.
type Watcher struct {
	spec   string
	target BulkScanner
	logger *slog.Logger
	cron   *cron.Cron
}

// New validates spec and returns a Watcher. logger may be nil.
func New(spec string, target BulkScanner, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", spec, err)
	}
	cl := cronLogger{logger.With("component", "watch")}
	return &Watcher{
		spec:   spec,
		target: target,
		logger: logger,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}, nil
}

// Run starts the schedule and blocks until ctx is done. A bulk scan in
// progress at that point stops before its next site; Run waits for it.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.spec, func() { w.tick(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	w.cron.Start()
	w.logger.Info("watch schedule started", "spec", w.spec)

	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.logger.Info("watch schedule stopped")
	return nil
}

func (w *Watcher) tick(ctx context.Context) {
	sum, err := w.target.ScanAll(ctx)
	switch {
	case errors.Is(err, registry.ErrBulkScanInProgress):
		w.logger.Info("scheduled scan skipped, a bulk scan is already running")
	case errors.Is(err, context.Canceled):
		w.logger.Info("scheduled scan interrupted", "scanned", sum.Scanned)
	case err != nil:
		w.logger.Error("scheduled scan failed", "error", err)
	default:
		w.logger.Info("scheduled scan complete", "succeeded", sum.Succeeded, "failed", sum.Failed)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
