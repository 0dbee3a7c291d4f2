// Package storage persists saved OCR sessions.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// ErrInvalidID is returned for ids that cannot be used as a storage key.
var ErrInvalidID = errors.New("invalid session id")

// Store defines the interface for session storage.
type Store interface {
	// Save creates or replaces the record with rec.ID.
	Save(ctx context.Context, rec models.SessionRecord) error
	Get(ctx context.Context, id string) (models.SessionRecord, error)
	// List returns every record, newest timestamp first.
	List(ctx context.Context) ([]models.SessionRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// SanitizeID rejects ids that could escape the storage directory.
func SanitizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id, nil
}

// SortNewestFirst orders records by timestamp, descending.
func SortNewestFirst(recs []models.SessionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp > recs[j].Timestamp
	})
}

const filePrefix = "table_"

// LocalStore implements Store with one JSON file per session.
type LocalStore struct {
	mu  sync.RWMutex
	dir string
	log zerolog.Logger
}

// NewLocalStore creates a new LocalStore rooted at dir.
func NewLocalStore(dir string, log zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &LocalStore{dir: dir, log: logging.Component(log, "store")}, nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, filePrefix+id+".json")
}

// Save writes rec through a temp file so readers never see a partial record.
func (s *LocalStore) Save(_ context.Context, rec models.SessionRecord) error {
	id, err := SanitizeID(rec.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Get retrieves one record.
func (s *LocalStore) Get(_ context.Context, id string) (models.SessionRecord, error) {
	id, err := SanitizeID(id)
	if err != nil {
		return models.SessionRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(s.path(id))
}

func (s *LocalStore) read(path string) (models.SessionRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("reading session: %w", err)
	}
	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.SessionRecord{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// List returns all records. Files that fail to parse are logged and skipped.
func (s *LocalStore) List(_ context.Context) ([]models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*.json"))
	if err != nil {
		return nil, err
	}

	recs := make([]models.SessionRecord, 0, len(paths))
	for _, p := range paths {
		rec, err := s.read(p)
		if err != nil {
			s.log.Warn().Err(err).Str("file", filepath.Base(p)).Msg("skipping unreadable session")
			continue
		}
		recs = append(recs, rec)
	}
	SortNewestFirst(recs)
	return recs, nil
}

// Delete removes a record.
func (s *LocalStore) Delete(_ context.Context, id string) error {
	id, err := SanitizeID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *LocalStore) Close() error { return nil }
