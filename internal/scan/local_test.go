package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const careersHTML = `<!doctype html>
<html><head><title>Acme | Careers</title><style>body{color:red}</style></head>
<body>
  <nav>Home</nav>
  <script>var tracking = "ignored";</script>
  <h1>Open positions</h1>
  <ul>
    <li><a href="https://acme.test/jobs/1">Senior Go Engineer</a></li>
    <li>Data   Analyst</li>
  </ul>
</body></html>`

func TestHTMLText(t *testing.T) {
	title, text, err := htmlText(strings.NewReader(careersHTML))
	if err != nil {
		t.Fatalf("htmlText: %v", err)
	}
	if title != "Acme | Careers" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"Open positions", "Senior Go Engineer", "Data Analyst", "(https://acme.test/jobs/1)"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, bad := range []string{"tracking", "color:red"} {
		if strings.Contains(text, bad) {
			t.Errorf("text contains %q", bad)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("ok", 10); got != "ok" {
		t.Errorf("truncateRunes = %q", got)
	}
}

func TestFetchPage_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := FetchPage(context.Background(), srv.Client(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v, want status 404", err)
	}
}

func TestFetchPage_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "Job 1\n\n\nJob 2\n")
	}))
	defer srv.Close()

	p, err := FetchPage(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if p.Text != "Job 1\nJob 2" {
		t.Errorf("text = %q", p.Text)
	}
}

func TestLocalScan(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/careers":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, careersHTML)
		case "/api/chat":
			var req struct {
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.Messages) == 2 {
				prompt = req.Messages[1].Content
			}
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"- Senior Go Engineer"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLocal(Options{OllamaBaseURL: srv.URL, Model: "tiny"})
	res, err := l.Scan(context.Background(), "Acme", srv.URL+"/careers", "go")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Text != "- Senior Go Engineer" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Sources) != 1 || res.Sources[0].URI != srv.URL+"/careers" || res.Sources[0].Title != "Acme | Careers" {
		t.Errorf("sources = %+v", res.Sources)
	}
	if !strings.Contains(prompt, "Senior Go Engineer") {
		t.Error("page content was not sent to the model")
	}
}

func TestLocalScan_PageDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewLocal(Options{OllamaBaseURL: srv.URL}).Scan(context.Background(), "A", srv.URL+"/x", "")
	var se *ScanError
	if !errors.As(err, &se) || se.Provider != ProviderLocal {
		t.Fatalf("err = %v, want local *ScanError", err)
	}
}

func TestLocalScan_ReplyUnmodified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/careers":
			fmt.Fprint(w, "Senior Go Engineer")
		case "/api/chat":
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"\n- Senior Go Engineer\n"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, err := NewLocal(Options{OllamaBaseURL: srv.URL, Model: "tiny"}).Scan(context.Background(), "Acme", srv.URL+"/careers", "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Text != "\n- Senior Go Engineer\n" {
		t.Errorf("text = %q, want it unmodified", res.Text)
	}
}
