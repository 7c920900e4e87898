package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/jobwatch/internal/sites"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultTimeout     = 2 * time.Minute
)

// Gemini scans through the Gemini generateContent API with the Google Search
// grounding tool enabled.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// NewGemini creates a Gemini provider from opts.
func NewGemini(opts Options) *Gemini {
	g := &Gemini{
		apiKey:   opts.GeminiAPIKey,
		baseURL:  geminiBaseURL,
		model:    DefaultGeminiModel,
		language: opts.Language,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
	if g.httpClient.Timeout <= 0 {
		g.httpClient.Timeout = DefaultTimeout
	}
	if opts.BaseURL != "" {
		g.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Model != "" {
		g.model = opts.Model
	}
	return g
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		FinishReason      string        `json:"finishReason"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Scan implements Scanner.
func (g *Gemini) Scan(ctx context.Context, name, url, keywords string) (sites.ScanResult, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: BuildPrompt(name, url, keywords)}},
		}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: SystemInstruction(g.language)}},
		},
		Tools: []geminiTool{{GoogleSearch: &struct{}{}}},
	})
	if err != nil {
		return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("marshaling request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var eb geminiErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("status %d: %s", resp.StatusCode, eb.Error.Message))
		}
		return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("decoding response: %w", err))
	}
	return gr.result()
}

func (gr geminiResponse) result() (sites.ScanResult, error) {
	if len(gr.Candidates) == 0 {
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			return sites.ScanResult{}, scanErr(ProviderGemini, fmt.Errorf("prompt blocked: %s", gr.PromptFeedback.BlockReason))
		}
		return sites.ScanResult{}, scanErr(ProviderGemini, ErrEmptyResponse)
	}

	c := gr.Candidates[0]
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return sites.ScanResult{}, scanErr(ProviderGemini, ErrEmptyResponse)
	}

	var sources []sites.Source
	if c.GroundingMetadata != nil {
		for _, ch := range c.GroundingMetadata.GroundingChunks {
			if ch.Web == nil {
				continue
			}
			sources = append(sources, sites.Source{Title: ch.Web.Title, URI: ch.Web.URI})
		}
	}
	return sites.ScanResult{Text: text, Sources: CleanSources(sources)}, nil
}
