package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kalambet/jobwatch/internal/sites"
)

// RegistryKey is the fixed key the registry snapshot lives under.
const RegistryKey = "jobhunter_sites"

// Snapshots loads and saves the whole registry as one blob. Neither
// operation returns an error: a bad snapshot reads as an empty registry and
// a failed write is logged.
type Snapshots struct {
	blobs  BlobStore
	key    string
	logger *slog.Logger
}

// NewSnapshots stores the registry under RegistryKey in blobs.
func NewSnapshots(blobs BlobStore) *Snapshots {
	return &Snapshots{blobs: blobs, key: RegistryKey, logger: slog.Default()}
}

// WithLogger returns s logging to logger.
func (s *Snapshots) WithLogger(logger *slog.Logger) *Snapshots {
	s.logger = logger
	return s
}

// Load returns the persisted registry, or an empty one when nothing usable
// is stored.
func (s *Snapshots) Load(ctx context.Context) []sites.Entry {
	data, err := s.blobs.GetBlob(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return []sites.Entry{}
	}
	if err != nil {
		s.logger.Warn("failed to read saved sites, starting empty", "key", s.key, "error", err)
		return []sites.Entry{}
	}

	entries, err := sites.DecodeRegistry(data)
	if err != nil {
		s.logger.Warn("failed to parse saved sites, starting empty", "key", s.key, "error", err)
		return []sites.Entry{}
	}
	return entries
}

// Save overwrites the persisted registry with entries.
func (s *Snapshots) Save(ctx context.Context, entries []sites.Entry) {
	data, err := sites.EncodeRegistry(entries)
	if err != nil {
		s.logger.Error("failed to encode sites", "error", err)
		return
	}
	if err := s.blobs.PutBlob(ctx, s.key, data); err != nil {
		s.logger.Error("failed to save sites", "key", s.key, "error", err)
	}
}
