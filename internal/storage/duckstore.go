package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// DuckStore keeps sessions in a single DuckDB table.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	log    zerolog.Logger
}

// NewDuckStore opens or creates the database at dbPath.
func NewDuckStore(dbPath string, log zerolog.Logger) (*DuckStore, error) {
	log = logging.Component(log, "duckstore")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.Warn().Err(err).Str("pragma", pragma).Msg("pragma failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id        VARCHAR PRIMARY KEY,
			name      VARCHAR NOT NULL,
			content   VARCHAR NOT NULL,
			timestamp VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("session database ready")
	return &DuckStore{db: db, dbPath: dbPath, log: log}, nil
}

func (s *DuckStore) Save(ctx context.Context, rec models.SessionRecord) error {
	id, err := SanitizeID(rec.ID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, name, content, timestamp) VALUES (?, ?, ?, ?)`,
		id, rec.Name, rec.Content, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *DuckStore) Get(ctx context.Context, id string) (models.SessionRecord, error) {
	id, err := SanitizeID(id)
	if err != nil {
		return models.SessionRecord{}, err
	}
	var rec models.SessionRecord
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, content, timestamp FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Name, &rec.Content, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("reading session: %w", err)
	}
	return rec, nil
}

func (s *DuckStore) List(ctx context.Context) ([]models.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, content, timestamp FROM sessions ORDER BY timestamp DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var recs []models.SessionRecord
	for rows.Next() {
		var rec models.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Content, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *DuckStore) Delete(ctx context.Context, id string) error {
	id, err := SanitizeID(id)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DuckStore) Close() error {
	return s.db.Close()
}
