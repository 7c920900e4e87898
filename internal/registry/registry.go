// Package registry owns the ordered list of watched sites and drives scans.
// Every mutation goes through a Registry method and is followed by a full
// snapshot save.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jobwatch/internal/scan"
	"github.com/kalambet/jobwatch/internal/sites"
)

var (
	ErrNotFound           = errors.New("site not found")
	ErrValidation         = errors.New("invalid site")
	ErrBulkScanInProgress = errors.New("a bulk scan is already running")
	ErrNoResult           = errors.New("site has no stored result")
	ErrResultUnreadable   = errors.New("stored result is unreadable")
)

// Store persists full registry snapshots. storage.Snapshots implements it.
type Store interface {
	Load(ctx context.Context) []sites.Entry
	Save(ctx context.Context, entries []sites.Entry)
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Direction is a one-step move within the display order.
type Direction int

const (
	Left  Direction = -1
	Right Direction = 1
)

// ParseDirection accepts "left"/"right" (and "up"/"down" for list views).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "up":
		return Left, nil
	case "right", "down":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q: want left or right", s)
}

// Summary counts the outcomes of a bulk scan.
type Summary struct {
	Scanned   int `json:"scanned"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for lastChecked.
func WithClock(c Clock) Option { return func(r *Registry) { r.clock = c } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// Registry is safe for concurrent use. mu guards entries and the bulk flag
// and is never held across a provider call. lane serializes provider calls
// so that no two scans ever overlap.
type Registry struct {
	mu      sync.Mutex
	entries []sites.Entry
	bulk    bool

	lane sync.Mutex

	scanner scan.Scanner
	store   Store
	clock   Clock
	logger  *slog.Logger

	events eventHub
}

// New loads the saved registry from store and returns a Registry ready for use.
func New(ctx context.Context, scanner scan.Scanner, store Store, opts ...Option) *Registry {
	r := &Registry{
		scanner: scanner,
		store:   store,
		clock:   realClock{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.entries = store.Load(ctx)
	return r
}

// List returns a copy of the entries in display order.
func (r *Registry) List() []sites.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sites.Entry(nil), r.entries...)
}

// Get returns the entry with id.
func (r *Registry) Get(id string) (sites.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(id); i >= 0 {
		return r.entries[i], true
	}
	return sites.Entry{}, false
}

// BulkScanning reports whether ScanAll is running.
func (r *Registry) BulkScanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bulk
}

// Add appends a new idle site. Name and URL are required; a URL without a
// scheme gets https://.
func (r *Registry) Add(ctx context.Context, name, url, keywords string) (sites.Entry, error) {
	name = strings.TrimSpace(name)
	url = sites.NormalizeURL(url)
	keywords = strings.TrimSpace(keywords)
	if name == "" {
		return sites.Entry{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if url == "" {
		return sites.Entry{}, fmt.Errorf("%w: url is required", ErrValidation)
	}

	e := sites.New(name, url, keywords)

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.saveLocked(ctx)
	r.mu.Unlock()

	r.events.publish(Event{Kind: EventAdded, ID: e.ID, Status: e.Status})
	return e, nil
}

// Delete removes the site with id. Deleting an absent id is a no-op.
func (r *Registry) Delete(ctx context.Context, id string) bool {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.saveLocked(ctx)
	r.mu.Unlock()

	r.events.publish(Event{Kind: EventRemoved, ID: id})
	return true
}

// Rename replaces the name when newName is non-empty after trimming.
func (r *Registry) Rename(ctx context.Context, id, newName string) bool {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return false
	}

	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.entries[i].Name = newName
	st := r.entries[i].Status
	r.saveLocked(ctx)
	r.mu.Unlock()

	r.events.publish(Event{Kind: EventChanged, ID: id, Status: st})
	return true
}

// Move swaps the site with its neighbour in dir. Boundaries are no-ops.
func (r *Registry) Move(ctx context.Context, id string, dir Direction) bool {
	r.mu.Lock()
	moved := r.moveLocked(ctx, r.indexOf(id), dir)
	r.mu.Unlock()

	if moved {
		r.events.publish(Event{Kind: EventReordered})
	}
	return moved
}

// MoveIndex is Move addressed by display position.
func (r *Registry) MoveIndex(ctx context.Context, i int, dir Direction) bool {
	r.mu.Lock()
	moved := r.moveLocked(ctx, i, dir)
	r.mu.Unlock()

	if moved {
		r.events.publish(Event{Kind: EventReordered})
	}
	return moved
}

// moveLocked swaps entries i and i+dir. r.mu must be held.
func (r *Registry) moveLocked(ctx context.Context, i int, dir Direction) bool {
	if dir != Left && dir != Right {
		return false
	}
	j := i + int(dir)
	if i < 0 || i >= len(r.entries) || j < 0 || j >= len(r.entries) {
		return false
	}
	r.entries[i], r.entries[j] = r.entries[j], r.entries[i]
	r.saveLocked(ctx)
	return true
}

// MoveTo removes the site and reinserts it at index, clamped to the list.
func (r *Registry) MoveTo(ctx context.Context, id string, index int) bool {
	r.mu.Lock()
	from := r.indexOf(id)
	if from < 0 {
		r.mu.Unlock()
		return false
	}
	index = max(0, min(index, len(r.entries)-1))
	if index == from {
		r.mu.Unlock()
		return false
	}
	e := r.entries[from]
	r.entries = append(r.entries[:from], r.entries[from+1:]...)
	r.entries = append(r.entries[:index], append([]sites.Entry{e}, r.entries[index:]...)...)
	r.saveLocked(ctx)
	r.mu.Unlock()

	r.events.publish(Event{Kind: EventReordered})
	return true
}

// Result returns the stored result of a site.
func (r *Registry) Result(id string) (sites.ScanResult, error) {
	e, ok := r.Get(id)
	if !ok {
		return sites.ScanResult{}, ErrNotFound
	}
	if !e.HasResult() {
		return sites.ScanResult{}, ErrNoResult
	}
	res, err := e.Result()
	if err != nil {
		r.logger.Warn("stored scan result is unreadable", "site_id", id, "error", err)
		return sites.ScanResult{}, ErrResultUnreadable
	}
	return res, nil
}

func (r *Registry) indexOf(id string) int {
	for i := range r.entries {
		if r.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// saveLocked writes the full snapshot. Caller holds r.mu so snapshots are
// written in mutation order.
func (r *Registry) saveLocked(ctx context.Context) {
	r.store.Save(context.WithoutCancel(ctx), append([]sites.Entry(nil), r.entries...))
}
