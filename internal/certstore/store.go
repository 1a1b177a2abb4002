// Package certstore persists the credential blob of the last successful
// pairing as a single JSON file.
package certstore

import (
	"encoding/json"
	"fmt"
	"os"

	"tv_bridge/internal/logger"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "cert.json"

// Blob is the opaque credential material returned by the remote session.
type Blob map[string]any

// Empty reports whether the blob carries no pairing state.
func (b Blob) Empty() bool { return len(b) == 0 }

// Store reads and writes the blob at a fixed path. Single writer, no locking.
type Store struct {
	path string
	log  *logger.Logger
}

func New(path string, log *logger.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{path: path, log: log}
}

// Path returns the file the store operates on.
func (s *Store) Path() string { return s.path }

// Load returns the stored blob, or an empty blob when the file is missing or
// not a JSON object.
func (s *Store) Load() Blob {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Debugw("cert_load_skipped", "path", s.path, "err", err)
		return Blob{}
	}
	var b Blob
	if err := json.Unmarshal(raw, &b); err != nil || b == nil {
		s.log.Debugw("cert_load_corrupt", "path", s.path, "err", err)
		return Blob{}
	}
	return b
}

// Save overwrites the file with blob. Errors are logged and returned.
func (s *Store) Save(b Blob) error {
	if b == nil {
		b = Blob{}
	}
	raw, err := json.Marshal(b)
	if err != nil {
		s.log.Errorw("cert_save_failed", "path", s.path, "err", err)
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		s.log.Errorw("cert_save_failed", "path", s.path, "err", err)
		return fmt.Errorf("write credentials to %q: %w", s.path, err)
	}
	return nil
}
