// Package store persists the registry of produced narrations as a
// JSON flat file next to the output directories.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a narration ID is not in the registry.
var ErrNotFound = errors.New("narration not found")

// Narration is one produced audiobook entry.
type Narration struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	OutputDir  string    `json:"output_dir"`
	Voice      string    `json:"voice"`
	Speed      float64   `json:"speed"`
	Lang       string    `json:"lang"`
	Format     string    `json:"format"`
	Chapters   int       `json:"chapters"`
	Chunks     int       `json:"chunks"`
	ChunksDone int       `json:"chunks_done"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Complete reports whether every chunk was synthesized.
func (n Narration) Complete() bool {
	return n.Chunks > 0 && n.ChunksDone == n.Chunks
}

// Store is a mutex-guarded registry backed by one JSON file. Every
// mutation rewrites the file.
type Store struct {
	mu   sync.Mutex
	path string
	byID map[string]Narration
}

// Open loads the registry at path, creating an empty one if the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, byID: make(map[string]Narration)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var entries []Narration
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	for _, n := range entries {
		s.byID[n.ID] = n
	}
	return s, nil
}

// Add registers a new narration and returns it with a fresh ID.
func (s *Store) Add(n Narration) (Narration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.NewString()
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	s.byID[n.ID] = n
	if err := s.saveLocked(); err != nil {
		delete(s.byID, n.ID)
		return Narration{}, err
	}
	return n, nil
}

// Get returns the narration with the given ID.
func (s *Store) Get(id string) (Narration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return Narration{}, ErrNotFound
	}
	return n, nil
}

// Update applies fn to the stored narration and persists the result.
func (s *Store) Update(id string, fn func(*Narration)) (Narration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return Narration{}, ErrNotFound
	}
	fn(&n)
	n.ID = id
	n.UpdatedAt = time.Now().UTC()
	s.byID[id] = n
	if err := s.saveLocked(); err != nil {
		return Narration{}, err
	}
	return n, nil
}

// Remove deletes a narration from the registry.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return s.saveLocked()
}

// List returns all narrations, newest first.
func (s *Store) List() []Narration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Narration, 0, len(s.byID))
	for _, n := range s.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// saveLocked writes the registry atomically via a temp file rename.
func (s *Store) saveLocked() error {
	entries := make([]Narration, 0, len(s.byID))
	for _, n := range s.byID {
		entries = append(entries, n)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create registry directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return os.Rename(tmp, s.path)
}
