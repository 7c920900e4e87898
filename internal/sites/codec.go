package sites

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const defaultScheme = "https://"

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// NormalizeURL trims raw and prepends https:// when it carries no scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || schemePrefix.MatchString(raw) {
		return raw
	}
	return defaultScheme + raw
}

// UnmarshalJSON accepts legacy status names and maps unknown values to idle
// so that one odd entry does not make the whole registry unreadable.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = StatusIdle
		return nil
	}
	st, err := ParseStatus(raw)
	if err != nil {
		st = StatusIdle
	}
	*s = st
	return nil
}

// EncodeRegistry serializes the ordered registry as a JSON array.
func EncodeRegistry(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	return data, nil
}

// DecodeRegistry parses a serialized registry. Besides plain JSON decoding it
// repairs what a previous process (or the original browser app) may have
// left behind: missing or duplicate ids get a fresh id, and a site stuck in
// scanning is reset since no scan can be in flight at load time.
func DecodeRegistry(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || seen[e.ID] {
			e.ID = uuid.New().String()
		}
		seen[e.ID] = true

		if e.Status == "" {
			e.Status = StatusIdle
		}
		if e.Status == StatusScanning {
			e.Status = StatusIdle
			if e.HasResult() {
				e.Status = StatusSuccess
			}
		}
		if e.Status == StatusSuccess && !e.HasResult() {
			e.Status = StatusIdle
		}
		out = append(out, e)
	}
	return out, nil
}
