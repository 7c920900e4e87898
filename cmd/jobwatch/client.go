package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/jobwatch/internal/config"
)

const requestTimeout = 30 * time.Second

// apiClient talks to the local jobwatch server.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// scanTimeout bounds a synchronous scan request.
	scanTimeout time.Duration
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	token, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return nil, fmt.Errorf("getting API token: %w", err)
	}

	return &apiClient{
		baseURL:     fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:       token,
		httpClient:  &http.Client{Timeout: requestTimeout},
		scanTimeout: cfg.ScanTimeout() + requestTimeout,
	}, nil
}

// forScan returns a copy of c whose requests may run as long as a scan.
func (c *apiClient) forScan() *apiClient {
	cp := *c
	hc := *c.httpClient
	hc.Timeout = max(hc.Timeout, c.scanTimeout)
	cp.httpClient = &hc
	return &cp
}

// serverError is a non-2xx answer from the server.
type serverError struct {
	Code    int
	Message string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// open sends a request and returns the body of a 2xx response. in, when
// non-nil, is sent as JSON.
func (c *apiClient) open(ctx context.Context, method, path string, in any) (io.ReadCloser, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is jobwatch running? (%w)", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, readServerError(resp)
	}
	return resp.Body, nil
}

// call sends a request and decodes the JSON answer into out.
func (c *apiClient) call(ctx context.Context, method, path string, in, out any) error {
	body, err := c.open(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// readServerError unwraps the {"error": {"message": ...}} envelope, falling
// back to the raw body.
func readServerError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &serverError{Code: resp.StatusCode, Message: fmt.Sprintf("(failed to read body: %v)", err)}
	}
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		return &serverError{Code: resp.StatusCode, Message: env.Error.Message}
	}
	return &serverError{Code: resp.StatusCode, Message: string(bytes.TrimSpace(raw))}
}
