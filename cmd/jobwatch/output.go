package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/jobwatch/internal/sites"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// messages is where status lines go. stdout stays clean for data.
var messages io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printMarked(color, mark, format string, args []any) {
	fmt.Fprintln(messages, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMarked(colorGreen, "✓", format, args) }
func printError(format string, args ...any)   { printMarked(colorRed, "✗", format, args) }
func printWarning(format string, args ...any) { printMarked(colorYellow, "⚠", format, args) }
func printStep(format string, args ...any)    { printMarked(colorCyan, "→", format, args) }

// printStatus prints an indented "label: value" line.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(messages, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

var statusColors = map[sites.Status]string{
	sites.StatusSuccess:  colorGreen,
	sites.StatusFailed:   colorRed,
	sites.StatusScanning: colorBlue,
}

// statusLabel renders a site status padded for table output.
func statusLabel(s sites.Status) string {
	color, ok := statusColors[s]
	if !ok {
		color = colorGray
	}
	return colorize(color, fmt.Sprintf("%-8s", s))
}
