package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const citedCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1760000000,
  "model": "gpt-4o-search-preview",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {
      "role": "assistant",
      "content": "- Platform Engineer (remote)",
      "refusal": null,
      "annotations": [
        {"type": "url_citation", "url_citation": {"start_index": 0, "end_index": 10, "title": "Acme Careers", "url": "https://acme.test/careers"}},
        {"type": "url_citation", "url_citation": {"start_index": 11, "end_index": 20, "title": "Acme Careers", "url": "https://acme.test/careers"}},
        {"type": "url_citation", "url_citation": {"start_index": 21, "end_index": 25, "title": "", "url": "https://acme.test/blank"}}
      ]
    }
  }]
}`

func TestOpenAIScan(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, citedCompletion)
	}))
	defer srv.Close()

	o := NewOpenAI(Options{OpenAIAPIKey: "test-key", BaseURL: srv.URL + "/"})
	res, err := o.Scan(context.Background(), "Acme", "https://acme.test", "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Text != "- Platform Engineer (remote)" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Sources) != 1 || res.Sources[0].Title != "Acme Careers" {
		t.Errorf("sources = %+v, want one deduplicated titled citation", res.Sources)
	}

	if body["model"] != DefaultOpenAIModel {
		t.Errorf("model = %v", body["model"])
	}
	ws, ok := body["web_search_options"].(map[string]any)
	if !ok || ws["search_context_size"] != "medium" {
		t.Errorf("web_search_options = %v", body["web_search_options"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want system + user", len(msgs))
	}
}

func TestOpenAIScan_APIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(Options{OpenAIAPIKey: "k", BaseURL: srv.URL + "/"}).Scan(context.Background(), "A", "https://a.test", "")
	var se *ScanError
	if !errors.As(err, &se) || se.Provider != ProviderOpenAI {
		t.Fatalf("err = %v, want openai *ScanError", err)
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %q", err.Error())
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestOpenAIScan_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":""}}]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(Options{OpenAIAPIKey: "k", BaseURL: srv.URL + "/"}).Scan(context.Background(), "A", "https://a.test", "")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestOpenAIScan_TextUnmodified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  - SRE\n"}}]}`)
	}))
	defer srv.Close()

	res, err := NewOpenAI(Options{OpenAIAPIKey: "k", BaseURL: srv.URL + "/"}).Scan(context.Background(), "A", "https://a.test", "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Text != "  - SRE\n" {
		t.Errorf("text = %q, want it unmodified", res.Text)
	}
}
