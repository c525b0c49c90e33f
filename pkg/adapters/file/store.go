// Package file provides a ports.StateStore keeping one JSON document per entity
// in a local directory. It suits single-process CLI use.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/labflow/pkg/domain"
)

// DefaultDir is used when New receives an empty path.
var DefaultDir = filepath.Join(".labflow", "state")

// document is the on-disk form of one entity.
type document struct {
	States  domain.States         `json:"states"`
	History []domain.HistoryEntry `json:"history"` // oldest first
}

// Store implements ports.StateStore using the local filesystem.
// Writes are serialized within the process; each one replaces the entity file atomically.
type Store struct {
	BasePath string
	mu       sync.RWMutex
}

// New creates a new Store with the given base path.
func New(basePath string) *Store {
	if basePath == "" {
		basePath = DefaultDir
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(uid string) (string, error) {
	if uid == "" || strings.ContainsAny(uid, `/\`) || uid == "." || uid == ".." {
		return "", fmt.Errorf("invalid uid %q", uid)
	}
	return filepath.Join(s.BasePath, uid+".json"), nil
}

func (s *Store) load(uid string) (*document, error) {
	path, err := s.path(uid)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state of %s: %w", uid, err)
	}
	return &doc, nil
}

// GetState returns the state of uid on axis.
func (s *Store) GetState(_ context.Context, uid string, axis domain.Axis) (domain.StateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load(uid)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", domain.ErrStateNotFound
	}
	state, ok := doc.States[axis]
	if !ok {
		return "", domain.ErrStateNotFound
	}
	return state, nil
}

// SetState records state and appends entry, then rewrites the entity file.
func (s *Store) SetState(_ context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(uid)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &document{States: make(domain.States)}
	}
	doc.States[axis] = state
	doc.History = append(doc.History, entry)
	return s.save(uid, doc)
}

// save writes doc to a temp file in the same directory, fsyncs it, then renames it over the entity file.
func (s *Store) save(uid string, doc *document) error {
	destPath, err := s.path(uid)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure state directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+uid+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // gone after a successful rename
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file for %s: %w", uid, err)
	}
	return nil
}

// History returns the entries of uid, newest first.
func (s *Store) History(_ context.Context, uid string) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load(uid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return []domain.HistoryEntry{}, nil
	}
	out := slices.Clone(doc.History)
	slices.Reverse(out)
	return out, nil
}

// Reindex is a no-op: the directory listing is the index.
func (s *Store) Reindex(context.Context, string, ...domain.Axis) error {
	return nil
}

// Delete removes the entity file.
func (s *Store) Delete(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(uid)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// List returns the UIDs with a state file.
func (s *Store) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.BasePath)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}

	var uids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		uids = append(uids, strings.TrimSuffix(name, ".json"))
	}
	return uids, nil
}
