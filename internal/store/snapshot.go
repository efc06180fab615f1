package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pedrow21/proxima/pkg/models"
)

// Snapshotter writes a Database to one JSON file per top-level
// collection under a data directory, using os.Rename for atomic replace.
// The exact on-disk layout is a non-goal beyond the minimum file set
// spec.md §6 names; this implements that minimum set.
type Snapshotter struct {
	dir string
}

// NewSnapshotter returns a Snapshotter rooted at dir, creating it if
// necessary.
func NewSnapshotter(dir string) (*Snapshotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create data dir: %w", err)
	}
	return &Snapshotter{dir: dir}, nil
}

// files lists the minimum file set from spec.md §6, paired with the
// Database field each serializes.
func (s *Snapshotter) files(db models.Database) map[string]any {
	return map[string]any{
		"folders.json":      db.Folders,
		"files.json":        db.Files,
		"devices.json":      db.Devices,
		"access_modes.json": db.AccessModes,
		"chats.json":        db.Chats,
		"tags.json":         db.Tags,
		"configs.json":      db.Configs,
		"user_data.json":    db.UserData,
	}
}

// Write snapshots db to disk, one file per collection, each replaced
// atomically via write-to-temp-then-rename so a crash mid-write never
// leaves a half-written file in place.
func (s *Snapshotter) Write(db models.Database) error {
	for name, value := range s.files(db) {
		if err := s.writeOne(name, value); err != nil {
			return fmt.Errorf("snapshot: %s: %w", name, err)
		}
	}
	return nil
}

func (s *Snapshotter) writeOne(name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Load reconstructs a Database from a previously-written snapshot
// directory. A missing file is treated as an empty collection, so a
// fresh data directory with only user_data.json (written by account
// creation) loads cleanly.
func Load(dir string) (models.Database, error) {
	var db models.Database
	targets := map[string]any{
		"folders.json":      &db.Folders,
		"files.json":        &db.Files,
		"devices.json":      &db.Devices,
		"access_modes.json": &db.AccessModes,
		"chats.json":        &db.Chats,
		"tags.json":         &db.Tags,
		"configs.json":      &db.Configs,
		"user_data.json":    &db.UserData,
	}
	for name, target := range targets {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return db, fmt.Errorf("load: %s: %w", name, err)
		}
		if err := json.Unmarshal(data, target); err != nil {
			return db, fmt.Errorf("load: %s: %w", name, err)
		}
	}
	return db, nil
}
