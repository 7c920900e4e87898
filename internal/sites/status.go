// Package sites defines the watched-site model and its scan status machine.
//
// Status graph:
//
//	idle ──► scanning ──► success ──► scanning …
//	             │
//	             └──────► failed ───► scanning …
//
// A scan always starts from a non-scanning state and ends in success or
// failed. There is no transition back to idle once a site has been scanned.
package sites

import "fmt"

// Status reflects the most recent scan attempt of a site only.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusScanning Status = "scanning"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

var validTransitions = map[Status][]Status{
	StatusIdle:     {StatusScanning},
	StatusScanning: {StatusSuccess, StatusFailed},
	StatusSuccess:  {StatusScanning},
	StatusFailed:   {StatusScanning},
}

// ParseStatus converts a raw string to a Status. The names used by the
// original browser app ("loading", "error") are accepted as aliases.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusIdle, StatusScanning, StatusSuccess, StatusFailed:
		return st, nil
	case "loading":
		return StatusScanning, nil
	case "error":
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown site status %q", s)
}

// CanTransition reports whether moving from → to is permitted.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a scan attempt.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Label is the short human-readable form shown on cards.
func (s Status) Label() string {
	switch s {
	case StatusScanning:
		return "scanning…"
	case StatusSuccess:
		return "checked"
	case StatusFailed:
		return "error"
	default:
		return "pending"
	}
}
