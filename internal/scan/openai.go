package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/kalambet/jobwatch/internal/sites"
)

// DefaultOpenAIModel is a chat model with built-in web search.
const DefaultOpenAIModel = "gpt-4o-search-preview"

// OpenAI scans through Chat Completions with web search enabled. Citations
// come back as url_citation annotations on the assistant message.
type OpenAI struct {
	client   openai.Client
	model    string
	language string
}

// NewOpenAI creates an OpenAI provider from opts. SDK retries are disabled.
func NewOpenAI(opts Options) *OpenAI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.OpenAIAPIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	o := &OpenAI{
		client:   openai.NewClient(reqOpts...),
		model:    DefaultOpenAIModel,
		language: opts.Language,
	}
	if opts.Model != "" {
		o.model = opts.Model
	}
	return o
}

// Scan implements Scanner.
func (o *OpenAI) Scan(ctx context.Context, name, url, keywords string) (sites.ScanResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemInstruction(o.language)),
			openai.UserMessage(BuildPrompt(name, url, keywords)),
		},
		WebSearchOptions: openai.ChatCompletionNewParamsWebSearchOptions{
			SearchContextSize: "medium",
		},
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return sites.ScanResult{}, scanErr(ProviderOpenAI, fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
		}
		return sites.ScanResult{}, scanErr(ProviderOpenAI, err)
	}
	if len(completion.Choices) == 0 {
		return sites.ScanResult{}, scanErr(ProviderOpenAI, ErrEmptyResponse)
	}

	msg := completion.Choices[0].Message
	text := msg.Content
	if strings.TrimSpace(text) == "" {
		if msg.Refusal != "" {
			return sites.ScanResult{}, scanErr(ProviderOpenAI, fmt.Errorf("refused: %s", msg.Refusal))
		}
		return sites.ScanResult{}, scanErr(ProviderOpenAI, ErrEmptyResponse)
	}

	var sources []sites.Source
	seen := make(map[string]bool)
	for _, a := range msg.Annotations {
		c := a.URLCitation
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		sources = append(sources, sites.Source{Title: c.Title, URI: c.URL})
	}
	return sites.ScanResult{Text: text, Sources: CleanSources(sources)}, nil
}
