// Package scan asks an external AI provider which job openings a site
// currently lists. Every provider is stateless: one call, one request, no
// retries and no caching.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/jobwatch/internal/sites"
)

// Scanner looks up current openings for one site.
type Scanner interface {
	Scan(ctx context.Context, name, url, keywords string) (sites.ScanResult, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context, name, url, keywords string) (sites.ScanResult, error)

func (f ScannerFunc) Scan(ctx context.Context, name, url, keywords string) (sites.ScanResult, error) {
	return f(ctx, name, url, keywords)
}

// ScanError wraps any transport or provider failure, including responses
// that lack the fields a result needs.
type ScanError struct {
	Provider string
	Err      error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s scan failed: %v", e.Provider, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ErrEmptyResponse is wrapped in a ScanError when the provider returned no text.
var ErrEmptyResponse = errors.New("provider returned no text")

func scanErr(provider string, err error) error {
	return &ScanError{Provider: provider, Err: err}
}

// CleanSources trims citations and drops those missing a title or a URI.
// Order is preserved; the result is never nil.
func CleanSources(in []sites.Source) []sites.Source {
	out := make([]sites.Source, 0, len(in))
	for _, s := range in {
		s.Title = strings.TrimSpace(s.Title)
		s.URI = strings.TrimSpace(s.URI)
		if s.Title == "" || s.URI == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Options configures the provider built by New.
type Options struct {
	Provider string
	Model    string // empty selects the provider default
	Language string
	Timeout  time.Duration

	GeminiAPIKey  string
	OpenAIAPIKey  string
	OllamaBaseURL string

	// BaseURL overrides the provider endpoint (tests, proxies).
	BaseURL string
}

// New builds the Scanner named by opts.Provider.
func New(opts Options) (Scanner, error) {
	switch opts.Provider {
	case "", ProviderGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing Gemini API key: set JOBWATCH_GEMINI_API_KEY")
		}
		return NewGemini(opts), nil
	case ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("missing OpenAI API key: set JOBWATCH_OPENAI_API_KEY")
		}
		return NewOpenAI(opts), nil
	case ProviderLocal:
		return NewLocal(opts), nil
	default:
		return nil, fmt.Errorf("unknown scan provider %q", opts.Provider)
	}
}
