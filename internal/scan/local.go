package scan

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kalambet/jobwatch/internal/ollama"
	"github.com/kalambet/jobwatch/internal/sites"
)

// DefaultLocalModel is pulled on first start when scan.provider is local.
const DefaultLocalModel = "llama3.1"

// Local fetches the site itself and asks a local Ollama model to summarize
// the openings. It has no web search: the only source is the page fetched.
type Local struct {
	llm        *ollama.Client
	model      string
	language   string
	httpClient *http.Client
}

// NewLocal creates a Local provider from opts.
func NewLocal(opts Options) *Local {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l := &Local{
		llm:        ollama.New(opts.OllamaBaseURL),
		model:      DefaultLocalModel,
		language:   opts.Language,
		httpClient: &http.Client{Timeout: timeout},
	}
	if opts.Model != "" {
		l.model = opts.Model
	}
	return l
}

// Client exposes the Ollama client so startup can pull the model.
func (l *Local) Client() *ollama.Client { return l.llm }

// Model returns the configured model name.
func (l *Local) Model() string { return l.model }

// Scan implements Scanner.
func (l *Local) Scan(ctx context.Context, name, url, keywords string) (sites.ScanResult, error) {
	page, err := FetchPage(ctx, l.httpClient, url)
	if err != nil {
		return sites.ScanResult{}, scanErr(ProviderLocal, err)
	}
	if strings.TrimSpace(page.Text) == "" {
		return sites.ScanResult{}, scanErr(ProviderLocal, fmt.Errorf("page %s has no readable text", page.URL))
	}

	var sb strings.Builder
	sb.WriteString(BuildPrompt(name, url, keywords))
	sb.WriteString("\nYou cannot browse. Use only the page content below, fetched from ")
	sb.WriteString(page.URL)
	sb.WriteString(".\n\n--- PAGE CONTENT ---\n")
	sb.WriteString(page.Text)
	sb.WriteString("\n--- END PAGE CONTENT ---\n")

	reply, err := l.llm.Chat(ctx, l.model, []ollama.Message{
		{Role: "system", Content: SystemInstruction(l.language)},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return sites.ScanResult{}, scanErr(ProviderLocal, err)
	}
	text := reply
	if strings.TrimSpace(text) == "" {
		return sites.ScanResult{}, scanErr(ProviderLocal, ErrEmptyResponse)
	}

	title := page.Title
	if title == "" {
		title = name
	}
	return sites.ScanResult{
		Text:    text,
		Sources: CleanSources([]sites.Source{{Title: title, URI: page.URL}}),
	}, nil
}
