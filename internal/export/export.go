// Package export renders a stored scan result as a standalone printable
// HTML document.
package export

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/kalambet/jobwatch/internal/sites"
)

var page = template.Must(template.New("result").Funcs(template.FuncMap{
	"checked": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Local().Format("2006-01-02 15:04 MST")
	},
	"label": func(s sites.Source) string {
		if s.Title != "" {
			return s.Title
		}
		return s.URI
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Entry.Name}} · job openings</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1f2937; line-height: 1.5; }
  header { border-bottom: 2px solid #4f46e5; margin-bottom: 1.5rem; padding-bottom: .5rem; }
  h1 { margin: 0 0 .25rem; font-size: 1.6rem; }
  .meta { color: #6b7280; font-size: .9rem; }
  .meta a { color: #4f46e5; }
  .keywords span { display: inline-block; background: #eef2ff; color: #3730a3; border-radius: 4px; padding: 0 .4rem; margin-right: .25rem; font-size: .8rem; }
  .result { white-space: pre-wrap; word-wrap: break-word; }
  h2 { font-size: 1.1rem; margin-top: 2rem; }
  ol.sources { padding-left: 1.25rem; font-size: .9rem; }
  ol.sources a { color: #4f46e5; word-break: break-all; }
  footer { margin-top: 2rem; color: #9ca3af; font-size: .75rem; }
  @media print {
    body { margin: 0; max-width: none; }
    a { color: inherit; text-decoration: none; }
    ol.sources a::after { content: " (" attr(href) ")"; }
    footer { display: none; }
  }
</style>
</head>
<body>
<header>
  <h1>{{.Entry.Name}}</h1>
  <div class="meta">
    <a href="{{.Entry.URL}}">{{.Entry.URL}}</a> · checked {{checked .Entry.LastChecked}}
  </div>
  {{- with .Entry.KeywordList}}
  <div class="meta keywords">{{range .}}<span>{{.}}</span>{{end}}</div>
  {{- end}}
</header>
<main>
  <div class="result">{{.Result.Text}}</div>
  {{- if .Result.Sources}}
  <h2>Sources</h2>
  <ol class="sources">
    {{- range .Result.Sources}}
    <li><a href="{{.URI}}">{{label .}}</a></li>
    {{- end}}
  </ol>
  {{- end}}
</main>
<footer>Generated by jobwatch on {{.Generated}}</footer>
</body>
</html>
`))

type pageData struct {
	Entry     sites.Entry
	Result    sites.ScanResult
	Generated string
}

// RenderHTML writes the printable document for entry and its stored result.
func RenderHTML(w io.Writer, entry sites.Entry, result sites.ScanResult) error {
	data := pageData{
		Entry:     entry,
		Result:    result,
		Generated: time.Now().Format("2006-01-02 15:04"),
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("rendering export for %s: %w", entry.ID, err)
	}
	return nil
}

// Filename suggests a file name for the export of entry.
func Filename(entry sites.Entry) string {
	return fmt.Sprintf("jobwatch-%s.html", entry.Domain())
}
