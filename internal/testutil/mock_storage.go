// mock_storage.go - In-memory session store for testing
package testutil

import (
	"context"
	"sync"

	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/storage"
)

// MockStorage implements storage.Store in memory. SaveErr and ListErr, when
// set, are returned by the matching calls.
type MockStorage struct {
	mu      sync.RWMutex
	records map[string]models.SessionRecord
	saves   int

	SaveErr error
	ListErr error
}

// NewMockStorage creates an empty store.
func NewMockStorage() *MockStorage {
	return &MockStorage{records: make(map[string]models.SessionRecord)}
}

func (m *MockStorage) Save(_ context.Context, rec models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, err := storage.SanitizeID(rec.ID); err != nil {
		return err
	}
	m.records[rec.ID] = rec
	m.saves++
	return nil
}

func (m *MockStorage) Get(_ context.Context, id string) (models.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return models.SessionRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *MockStorage) List(_ context.Context) ([]models.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	recs := make([]models.SessionRecord, 0, len(m.records))
	for _, r := range m.records {
		recs = append(recs, r)
	}
	storage.SortNewestFirst(recs)
	return recs, nil
}

func (m *MockStorage) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MockStorage) Close() error { return nil }

// Put stores rec directly.
func (m *MockStorage) Put(rec models.SessionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
}

// Len returns the number of records.
func (m *MockStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Saves counts successful Save calls.
func (m *MockStorage) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
