package sites

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// ErrIllegalTransition is returned when a status change is not in the graph.
var ErrIllegalTransition = errors.New("illegal status transition")

// Source is a grounding citation returned alongside a scan summary.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// ScanResult is the outcome of one successful scan.
type ScanResult struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Entry is one watched site.
type Entry struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Keywords    string     `json:"keywords"`
	LastChecked *time.Time `json:"lastChecked"`
	LastResult  string     `json:"lastResult,omitempty"` // serialized ScanResult
	Status      Status     `json:"status"`
}

// New creates an idle entry with a fresh id. url must already be normalized.
func New(name, url, keywords string) Entry {
	return Entry{
		ID:       uuid.New().String(),
		Name:     name,
		URL:      url,
		Keywords: keywords,
		Status:   StatusIdle,
	}
}

// HasResult reports whether a result has been stored.
func (e Entry) HasResult() bool {
	return e.LastResult != ""
}

// Result parses the stored result.
func (e Entry) Result() (ScanResult, error) {
	var r ScanResult
	if err := json.Unmarshal([]byte(e.LastResult), &r); err != nil {
		return ScanResult{}, fmt.Errorf("parsing stored result for %s: %w", e.ID, err)
	}
	if r.Sources == nil {
		r.Sources = []Source{}
	}
	return r, nil
}

// KeywordList splits the comma-delimited keywords, dropping blanks.
func (e Entry) KeywordList() []string {
	var out []string
	for _, k := range strings.Split(e.Keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Domain returns the registrable domain of the entry URL (e.g. "example.co.uk"),
// falling back to the bare host when it has no public suffix.
func (e Entry) Domain() string {
	u, err := url.Parse(e.URL)
	if err != nil || u.Hostname() == "" {
		return e.URL
	}
	host := strings.ToLower(u.Hostname())
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// BeginScan moves the entry to scanning.
func (e *Entry) BeginScan() error {
	return e.transition(StatusScanning)
}

// Succeed records a successful scan. The result and the check time are
// always set together.
func (e *Entry) Succeed(r ScanResult, at time.Time) error {
	if r.Sources == nil {
		r.Sources = []Source{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := e.transition(StatusSuccess); err != nil {
		return err
	}
	at = at.UTC()
	e.LastChecked = &at
	e.LastResult = string(data)
	return nil
}

// Fail records a failed scan, keeping any previous result.
func (e *Entry) Fail() error {
	return e.transition(StatusFailed)
}

func (e *Entry) transition(to Status) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, e.Status, to)
	}
	e.Status = to
	return nil
}
