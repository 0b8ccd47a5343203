// Package sessions persists analysis sessions and pushes per-user session
// lists to live subscribers.
package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"foresight/internal/models"
	"foresight/internal/storage"
)

// ErrNotFound is returned when the session does not exist or belongs to another user.
var ErrNotFound = errors.New("session not found")

// Store is the SQL-backed session repository.
type Store struct {
	db       *sql.DB
	driver   string
	onChange func(userID string)
}

// NewStore builds a session repository over an already migrated database.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// OnChange registers the callback run after every successful mutation.
func (s *Store) OnChange(fn func(userID string)) {
	s.onChange = fn
}

func (s *Store) notify(userID string) {
	if s.onChange != nil {
		s.onChange(userID)
	}
}

func (s *Store) q(query string) string {
	return storage.Rebind(s.driver, query)
}

// Create inserts a new in-progress session with no files.
func (s *Store) Create(ctx context.Context, userID string, data models.StartupData) (*models.Session, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	now := time.Now().UTC()
	session := &models.Session{
		ID:           models.NewID(),
		UserID:       userID,
		Name:         strings.TrimSpace(data.Name),
		Website:      data.Website,
		Pitch:        data.Pitch,
		TargetMarket: data.TargetMarket,
		Files:        []models.FileDescriptor{},
		Status:       models.StatusInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO sessions (id, user_id, name, website, pitch, target_market, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		session.ID, session.UserID, session.Name, session.Website, session.Pitch, session.TargetMarket,
		string(session.Status), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.notify(userID)
	return session, nil
}

const sessionColumns = `id, user_id, name, website, pitch, target_market, status, analysis, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session  models.Session
		status   string
		analysis sql.NullString
	)
	if err := row.Scan(&session.ID, &session.UserID, &session.Name, &session.Website, &session.Pitch,
		&session.TargetMarket, &status, &analysis, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	if analysis.Valid && analysis.String != "" {
		session.Analysis = json.RawMessage(analysis.String)
	}
	session.Files = []models.FileDescriptor{}
	return &session, nil
}

// Get returns one session owned by userID with its ordered files.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrNotFound
	}
	session, err := scanSession(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+sessionColumns+` FROM sessions WHERE id = ? AND user_id = ?`),
		sessionID, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	files, err := s.loadFiles(ctx, s.q(`SELECT session_id, name, original_name, path FROM session_files WHERE session_id = ? ORDER BY position ASC`), sessionID)
	if err != nil {
		return nil, err
	}
	session.Files = append(session.Files, files[sessionID]...)
	return session, nil
}

// List returns the user's sessions, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY created_at DESC, id DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	files, err := s.loadFiles(ctx,
		s.q(`SELECT f.session_id, f.name, f.original_name, f.path FROM session_files f
			JOIN sessions s ON s.id = f.session_id
			WHERE s.user_id = ? ORDER BY f.session_id, f.position ASC`),
		userID,
	)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Files = append(sessions[i].Files, files[sessions[i].ID]...)
	}
	return sessions, nil
}

func (s *Store) loadFiles(ctx context.Context, query string, args ...any) (map[string][]models.FileDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]models.FileDescriptor)
	for rows.Next() {
		var (
			sessionID string
			f         models.FileDescriptor
		)
		if err := rows.Scan(&sessionID, &f.Name, &f.OriginalName, &f.Path); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out[sessionID] = append(out[sessionID], f)
	}
	return out, rows.Err()
}

// AppendFiles adds descriptors after the session's existing files, keeping their order.
func (s *Store) AppendFiles(ctx context.Context, userID, sessionID string, files []models.FileDescriptor) (*models.Session, error) {
	if len(files) == 0 {
		return s.Get(ctx, userID, sessionID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Touching the row first takes its write lock, so concurrent appends to the
	// same session serialize before reading the next position.
	res, err := tx.ExecContext(ctx,
		s.q(`UPDATE sessions SET updated_at = ? WHERE id = ? AND user_id = ?`),
		time.Now().UTC(), sessionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		s.q(`SELECT COALESCE(MAX(position) + 1, 0) FROM session_files WHERE session_id = ?`),
		sessionID,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("next file position: %w", err)
	}

	for i, f := range files {
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO session_files (session_id, position, name, original_name, path) VALUES (?, ?, ?, ?, ?)`),
			sessionID, next+i, f.Name, f.OriginalName, f.Path,
		); err != nil {
			return nil, fmt.Errorf("insert file: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit files: %w", err)
	}
	s.notify(userID)
	return s.Get(ctx, userID, sessionID)
}

// Complete marks the session completed and stores the last analysis payload.
func (s *Store) Complete(ctx context.Context, userID, sessionID string, analysis json.RawMessage) (*models.Session, error) {
	var payload any
	if len(analysis) > 0 {
		payload = string(analysis)
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE sessions SET status = ?, analysis = ?, updated_at = ? WHERE id = ? AND user_id = ?`),
		string(models.StatusCompleted), payload, time.Now().UTC(), sessionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrNotFound
	}
	s.notify(userID)
	return s.Get(ctx, userID, sessionID)
}

// Delete removes the session and its file descriptors.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE id = ? AND user_id = ?`), sessionID, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	// mysql without foreign key enforcement still needs the explicit cleanup
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM session_files WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	s.notify(userID)
	return nil
}
