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
	"time"
)

const groundedResponse = `{
  "candidates": [{
    "content": {"role": "model", "parts": [{"text": "- Backend Engineer\n"}, {"text": "- SRE"}]},
    "finishReason": "STOP",
    "groundingMetadata": {
      "groundingChunks": [
        {"web": {"uri": "https://acme.test/careers", "title": "acme.test"}},
        {"web": {"uri": "", "title": "broken"}},
        {"retrievedContext": {}}
      ]
    }
  }]
}`

func TestGeminiScan(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, groundedResponse)
	}))
	defer srv.Close()

	g := NewGemini(Options{GeminiAPIKey: "test-key", BaseURL: srv.URL, Model: "gemini-test", Language: "German"})
	res, err := g.Scan(context.Background(), "Acme", "https://acme.test", "go")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if res.Text != "- Backend Engineer\n- SRE" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Sources) != 1 || res.Sources[0].URI != "https://acme.test/careers" {
		t.Errorf("sources = %+v", res.Sources)
	}

	if len(got.Tools) != 1 || got.Tools[0].GoogleSearch == nil {
		t.Error("request does not enable google_search")
	}
	if got.SystemInstruction == nil || !strings.Contains(got.SystemInstruction.Parts[0].Text, "German") {
		t.Errorf("system instruction = %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 1 || !strings.Contains(got.Contents[0].Parts[0].Text, "https://acme.test") {
		t.Errorf("contents = %+v", got.Contents)
	}
}

func TestGeminiScan_NoGrounding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"No openings found."}]}}]}`)
	}))
	defer srv.Close()

	res, err := NewGemini(Options{GeminiAPIKey: "k", BaseURL: srv.URL}).Scan(context.Background(), "A", "https://a.test", "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Sources == nil || len(res.Sources) != 0 {
		t.Errorf("sources = %#v, want empty slice", res.Sources)
	}
}

func TestGeminiScan_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`, "API key not valid"},
		{"plain error", http.StatusBadGateway, `upstream down`, "unexpected status 502"},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, ErrEmptyResponse.Error()},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse.Error()},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, "SAFETY"},
		{"malformed", http.StatusOK, `{"candidates":`, "decoding response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewGemini(Options{GeminiAPIKey: "k", BaseURL: srv.URL}).Scan(context.Background(), "A", "https://a.test", "")
			var se *ScanError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *ScanError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestGeminiScan_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGemini(Options{GeminiAPIKey: "k", BaseURL: srv.URL}).Scan(context.Background(), "A", "https://a.test", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestGeminiScan_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewGemini(Options{GeminiAPIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := g.Scan(context.Background(), "A", "https://a.test", "")
	var se *ScanError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *ScanError", err)
	}
}

func TestGeminiScan_TextUnmodified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"\n  - Go Engineer\n"},{"text":"\n"}]}}]}`)
	}))
	defer srv.Close()

	res, err := NewGemini(Options{GeminiAPIKey: "k", BaseURL: srv.URL}).Scan(context.Background(), "A", "https://a.test", "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if want := "\n  - Go Engineer\n\n"; res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
}
