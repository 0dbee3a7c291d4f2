// Package history lists, loads and deletes saved sessions.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/workspace"
)

// Client is the server API the manager needs.
type Client interface {
	History(ctx context.Context) ([]models.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
}

// Workspace is what loading and deleting touch.
type Workspace interface {
	Load(rec models.SessionRecord) error
	MakeAllEditable(onEdit func())
	NewSession(typ models.SessionType)
	SessionID() string
}

var _ Workspace = (*workspace.Workspace)(nil)

// Row is one history list item. Open and Delete are independent actions;
// deleting never loads.
type Row struct {
	models.SessionSummary
	Open   func() error
	Delete func(ctx context.Context) error
}

// Manager keeps the last fetched list.
type Manager struct {
	client Client
	ws     Workspace
	onEdit func()
	log    zerolog.Logger

	mu      sync.Mutex
	records []models.SessionRecord
}

// NewManager returns a manager. onEdit is re-attached to every entry of a
// loaded session.
func NewManager(client Client, ws Workspace, onEdit func(), log zerolog.Logger) *Manager {
	return &Manager{
		client: client,
		ws:     ws,
		onEdit: onEdit,
		log:    logging.Component(log, "history"),
	}
}

// Refresh fetches the list, newest first.
func (m *Manager) Refresh(ctx context.Context) ([]Row, error) {
	records, err := m.client.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	m.mu.Lock()
	m.records = records
	m.mu.Unlock()
	return m.Rows(), nil
}

// Rows returns the cached list.
func (m *Manager) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]Row, 0, len(m.records))
	for _, r := range m.records {
		rec := r
		rows = append(rows, Row{
			SessionSummary: rec.Summary(),
			Open:           func() error { return m.Load(rec) },
			Delete:         func(ctx context.Context) error { return m.Delete(ctx, rec.ID) },
		})
	}
	return rows
}

// Find returns a cached record by id.
func (m *Manager) Find(id string) (models.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, true
		}
	}
	return models.SessionRecord{}, false
}

// Load replaces the workspace with rec and re-attaches edit listeners.
func (m *Manager) Load(rec models.SessionRecord) error {
	if err := m.ws.Load(rec); err != nil {
		return err
	}
	m.ws.MakeAllEditable(m.onEdit)
	m.log.Info().Str("session", logging.ShortID(rec.ID)).Str("name", rec.Name).Msg("session loaded")
	return nil
}

// LoadByID refreshes the list when id is not cached, then loads it.
func (m *Manager) LoadByID(ctx context.Context, id string) error {
	rec, ok := m.Find(id)
	if !ok {
		if _, err := m.Refresh(ctx); err != nil {
			return err
		}
		if rec, ok = m.Find(id); !ok {
			return fmt.Errorf("session %s not found", id)
		}
	}
	return m.Load(rec)
}

// Delete removes a session on the server. Deleting the open session starts
// a fresh table session. The list is refreshed afterwards.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.client.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if m.ws.SessionID() == id {
		m.ws.NewSession(models.SessionTypeTable)
		m.log.Info().Str("session", logging.ShortID(id)).Msg("deleted open session, workspace reset")
	}
	if _, err := m.Refresh(ctx); err != nil {
		m.log.Warn().Err(err).Msg("history refresh after delete failed")
	}
	return nil
}
