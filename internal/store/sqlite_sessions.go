package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/engine"
	"github.com/hyperengineering/formpath/internal/types"
)

const sessionColumns = `id, form_id, status, current_page_id, created_at, updated_at, completed_at`

func scanSession(scanner interface{ Scan(...any) error }) (*types.Session, error) {
	var sess types.Session
	var status, createdAt, updatedAt string
	var currentPage, completedAt sql.NullString

	if err := scanner.Scan(&sess.ID, &sess.FormID, &status, &currentPage, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}

	sess.Status = types.SessionStatus(status)
	sess.CurrentPageID = currentPage.String
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		sess.CompletedAt = &t
	}
	return &sess, nil
}

// GetSession returns an existing session.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewNotFound(engine.KindSession, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// GetOrCreateSession returns the session, inserting it in_progress when absent.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, formID, sessionID string) (*types.Session, bool, error) {
	now := formatTime(time.Now())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, form_id, status, created_at, updated_at)
		VALUES (?, ?, 'in_progress', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sessionID, formID, now, now)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, false, engine.NewNotFound(engine.KindForm, formID)
		}
		return nil, false, fmt.Errorf("insert session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("get rows affected: %w", err)
	}

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return sess, n == 1, nil
}

// UpdateSessionPointer sets the current page and returns an abandoned
// session to in_progress.
func (s *SQLiteStore) UpdateSessionPointer(ctx context.Context, sessionID, pageID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET current_page_id = ?,
		    status = CASE WHEN status = 'abandoned' THEN 'in_progress' ELSE status END,
		    updated_at = ?
		WHERE id = ?
	`, nullString(pageID), formatTime(time.Now()), sessionID)
	if err != nil {
		if isConstraintViolation(err) {
			return engine.NewNotFound(engine.KindPage, pageID)
		}
		return fmt.Errorf("update session pointer: %w", err)
	}
	return requireRow(result, engine.KindSession, sessionID)
}

// MarkSessionComplete sets status completed, keeping the first completion time.
func (s *SQLiteStore) MarkSessionComplete(ctx context.Context, sessionID string) error {
	now := formatTime(time.Now())
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = 'completed',
		    completed_at = COALESCE(completed_at, ?),
		    updated_at = ?
		WHERE id = ?
	`, now, now, sessionID)
	if err != nil {
		return fmt.Errorf("mark session complete: %w", err)
	}
	return requireRow(result, engine.KindSession, sessionID)
}

// AbandonStale marks in_progress sessions untouched since threshold as
// abandoned and returns how many changed.
func (s *SQLiteStore) AbandonStale(ctx context.Context, threshold time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = 'abandoned', updated_at = ?
		WHERE status = 'in_progress' AND updated_at < ?
	`, formatTime(time.Now()), formatTime(threshold))
	if err != nil {
		return 0, fmt.Errorf("abandon stale sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// LoadAnswers returns the session's answers keyed by field name. Stored NULLs
// come back as answer.Null.
func (s *SQLiteStore) LoadAnswers(ctx context.Context, sessionID string) (answer.Map, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.name, a.value
		FROM answers a
		JOIN fields f ON f.id = a.field_id
		WHERE a.session_id = ?
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := answer.Map{}
	for rows.Next() {
		var name string
		var raw sql.NullString
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if !raw.Valid {
			out[name] = answer.Null{}
			continue
		}
		out[name] = answer.Decode(raw.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

// UpsertAnswer stores one answer per (session, field) and touches the
// session, returning an abandoned session to in_progress. The field must
// belong to the session's form.
func (s *SQLiteStore) UpsertAnswer(ctx context.Context, sessionID, fieldID string, value answer.Value) error {
	encoded, ok, err := answer.Encode(value)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	var stored any
	if ok {
		stored = encoded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var formID string
	err = tx.QueryRowContext(ctx, `SELECT form_id FROM sessions WHERE id = ?`, sessionID).Scan(&formID)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NewNotFound(engine.KindSession, sessionID)
	}
	if err != nil {
		return fmt.Errorf("query session: %w", err)
	}

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM fields WHERE id = ? AND form_id = ?`, fieldID, formID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NewNotFound(engine.KindField, fieldID)
	}
	if err != nil {
		return fmt.Errorf("query field: %w", err)
	}

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO answers (session_id, field_id, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, field_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, sessionID, fieldID, stored, now, now); err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET status = CASE WHEN status = 'abandoned' THEN 'in_progress' ELSE status END,
		    updated_at = ?
		WHERE id = ?
	`, now, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return engine.NewNotFound(kind, id)
	}
	return nil
}
