package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotRunning is returned by EnsureReady when no server answers.
var ErrNotRunning = errors.New("Ollama is not running. Start it with: ollama serve")

const warmUpTimeout = 30 * time.Second

// EnsureReady verifies the server is up and model is installed, pulling it
// when missing, then sends one throwaway prompt so the first scan does not
// pay for loading the model. Progress goes to w. A failed warm-up is reported
// but not returned.
func EnsureReady(ctx context.Context, c *Client, model string, w io.Writer) error {
	version, err := c.Version(ctx)
	if err != nil {
		return ErrNotRunning
	}
	fmt.Fprintf(w, "ollama %s at %s\n", version, c.baseURL)

	ok, err := c.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "model %s: pulling...\n", model)
		if err := c.PullModel(ctx, model, progressPrinter(w)); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "model %s: ready\n", model)

	warmCtx, cancel := context.WithTimeout(ctx, warmUpTimeout)
	defer cancel()
	if _, err := c.Chat(warmCtx, model, []Message{{Role: "user", Content: "ping"}}); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed: %v\n", model, err)
		return nil
	}
	fmt.Fprintf(w, "model %s: warm\n", model)
	return nil
}

// progressPrinter prints status changes and every tenth percent of a layer
// download rather than every streamed line.
func progressPrinter(w io.Writer) func(PullProgress) {
	lastStatus, lastPct := "", -1
	return func(p PullProgress) {
		pct := p.Percent()
		if p.Status == lastStatus && (pct < 0 || pct/10 == lastPct/10) {
			return
		}
		lastStatus, lastPct = p.Status, pct
		if pct < 0 {
			fmt.Fprintf(w, "  %s\n", p.Status)
			return
		}
		fmt.Fprintf(w, "  %s %d%%\n", p.Status, pct)
	}
}
