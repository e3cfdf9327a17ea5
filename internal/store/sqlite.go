// ABOUTME: SQLite implementation of the job sink and session store using modernc.org/sqlite.
// ABOUTME: Provides jobs/sessions persistence with automatic schema creation.

// Package store provides the local SQLite backend. It implements both the
// job sink and the session store, which makes a single-file deployment
// possible without Redis or the spreadsheet backend.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/OGJRx/intake-gateway/internal/flow"
	"github.com/OGJRx/intake-gateway/internal/job"
	"github.com/OGJRx/intake-gateway/internal/session"
)

// SQLiteStore implements job.Sink and session.Store on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Interface checks.
var (
	_ job.Sink      = (*SQLiteStore)(nil)
	_ session.Store = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a store at the given path. The schema is created if
// it doesn't exist, and parent directories are created if needed. Pass
// ":memory:" for an ephemeral database in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL improves concurrent read performance under webhook load
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			client_name TEXT NOT NULL,
			vehicle_info TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			is_lead INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			seq INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_chat_id
			ON jobs(chat_id, seq);

		CREATE TABLE IF NOT EXISTS sessions (
			user_id TEXT PRIMARY KEY,
			step TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save implements job.Sink. The identifier is generated here; the seq column
// carries insertion order so Query can return most-recent-last regardless of
// clock skew between rows.
func (s *SQLiteStore) Save(ctx context.Context, rec *job.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", job.ErrBackendLogic, err)
	}

	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, chat_id, client_name, vehicle_info, notes, status, progress, is_lead, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM jobs))`,
		id, rec.ChatID, rec.ClientName, rec.VehicleInfo, rec.Notes,
		string(rec.Status), rec.Progress, boolToInt(rec.IsLead), createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("%w: inserting job: %v", job.ErrTransport, err)
	}

	rec.ID = id
	rec.CreatedAt = createdAt
	return id, nil
}

// Query implements job.Sink, returning records in insertion order.
func (s *SQLiteStore) Query(ctx context.Context, chatID string) ([]*job.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, client_name, vehicle_info, notes, status, progress, is_lead, created_at
		FROM jobs WHERE chat_id = ? ORDER BY seq`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying jobs: %v", job.ErrTransport, err)
	}
	defer rows.Close()

	var records []*job.Record
	for rows.Next() {
		var rec job.Record
		var status string
		var isLead int
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.ClientName, &rec.VehicleInfo,
			&rec.Notes, &status, &rec.Progress, &isLead, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		rec.Status = job.Status(status)
		rec.IsLead = isLead != 0
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job rows: %w", err)
	}
	return records, nil
}

// Read implements session.Store.
func (s *SQLiteStore) Read(ctx context.Context, userID string) (session.State, error) {
	var step, data string
	err := s.db.QueryRowContext(ctx,
		"SELECT step, data FROM sessions WHERE user_id = ?", userID,
	).Scan(&step, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, session.ErrNotFound
	}
	if err != nil {
		return session.State{}, fmt.Errorf("reading session: %w", err)
	}

	state := session.State{Step: flow.Step(step)}
	if err := json.Unmarshal([]byte(data), &state.Data); err != nil {
		return session.State{}, fmt.Errorf("decoding session data: %w", err)
	}
	if state.Data == nil {
		state.Data = map[string]string{}
	}
	return state, nil
}

// Write implements session.Store.
func (s *SQLiteStore) Write(ctx context.Context, userID string, state session.State) error {
	data, err := json.Marshal(state.Data)
	if err != nil {
		return fmt.Errorf("encoding session data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, step, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET step=excluded.step, data=excluded.data, updated_at=excluded.updated_at`,
		userID, string(state.Step), string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Clear implements session.Store by deleting the row.
func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable. Used by the readiness endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
