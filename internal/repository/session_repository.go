package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "studyplan/backend/internal/errors"
	"studyplan/backend/internal/model"
)

const sessionColumns = `id, user_id, subject_id, session_type, planned_duration_seconds,
	started_at, paused_at, remaining_seconds, status, ended_at,
	actual_duration_seconds, created_at, updated_at`

// SessionRepository persists study sessions. Every mutation is conditioned on the status
// the caller expects, so racing writers from different tabs cannot both apply.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindOpenSession returns the user's most recent active or paused session, optionally
// restricted to subjectID.
func (r *SessionRepository) FindOpenSession(ctx context.Context, userID, subjectID string) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + `
		 FROM study_sessions
		 WHERE user_id = ? AND status IN ('active', 'paused')`
	args := []interface{}{userID}
	if subjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, subjectID)
	}
	query += ` ORDER BY started_at DESC, created_at DESC LIMIT 1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil && err != ErrNotFound {
		return nil, storeErr("find open session", err)
	}
	return session, err
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM study_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err != nil && err != ErrNotFound {
		return nil, storeErr("get session", err)
	}
	return session, err
}

// Create inserts a new active session. It fails with ErrConflict while the user has any
// open session; closing that session is the caller's job.
func (r *SessionRepository) Create(
	ctx context.Context,
	userID, subjectID string,
	sessionType model.SessionType,
	plannedDurationSeconds int,
	now time.Time,
) (*model.Session, error) {
	if !sessionType.Valid() || plannedDurationSeconds <= 0 {
		return nil, fmt.Errorf("create session of type %q for %ds: %w", sessionType, plannedDurationSeconds, apperrors.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback()

	var open int
	if err := tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM study_sessions WHERE user_id = ? AND status IN ('active', 'paused')`,
		userID,
	).Scan(&open); err != nil {
		return nil, storeErr("count open sessions", err)
	}
	if open > 0 {
		return nil, apperrors.ErrConflict
	}

	session := &model.Session{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		SubjectID:              subjectID,
		SessionType:            sessionType,
		PlannedDurationSeconds: plannedDurationSeconds,
		StartedAt:              now,
		RemainingSeconds:       plannedDurationSeconds,
		Status:                 model.StatusActive,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO study_sessions (
			id, user_id, subject_id, session_type, planned_duration_seconds,
			started_at, remaining_seconds, status, actual_duration_seconds, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		session.ID,
		session.UserID,
		session.SubjectID,
		string(session.SessionType),
		session.PlannedDurationSeconds,
		formatTime(session.StartedAt),
		session.RemainingSeconds,
		string(session.Status),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return nil, apperrors.ErrConflict
	}
	if err != nil {
		return nil, storeErr("insert session", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, storeErr("commit session", err)
	}
	return session, nil
}

// TransitionToPaused freezes the session at remainingSeconds.
func (r *SessionRepository) TransitionToPaused(
	ctx context.Context,
	session *model.Session,
	remainingSeconds int,
	now time.Time,
) (*model.Session, error) {
	remainingSeconds = clampRemaining(remainingSeconds, session.PlannedDurationSeconds)
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE study_sessions
		 SET status = 'paused',
		     paused_at = ?,
		     remaining_seconds = ?,
		     updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		formatTime(now),
		remainingSeconds,
		formatTime(now),
		session.ID,
	)
	if err != nil {
		return nil, storeErr("pause session", err)
	}
	return r.afterTransition(ctx, res, session.ID, "pause session")
}

// TransitionToActive resumes a paused session. started_at is re-anchored to now so the
// pause gap is never part of elapsed time.
func (r *SessionRepository) TransitionToActive(ctx context.Context, session *model.Session, now time.Time) (*model.Session, error) {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE study_sessions
		 SET status = 'active',
		     started_at = ?,
		     paused_at = NULL,
		     updated_at = ?
		 WHERE id = ? AND status = 'paused'`,
		formatTime(now),
		formatTime(now),
		session.ID,
	)
	if err != nil {
		return nil, storeErr("resume session", err)
	}
	return r.afterTransition(ctx, res, session.ID, "resume session")
}

// Complete ends an open session. When the session is already terminal the stored row is
// returned with applied=false and no error, so duplicate completions converge.
func (r *SessionRepository) Complete(
	ctx context.Context,
	session *model.Session,
	finalRemainingSeconds int,
	now time.Time,
) (*model.Session, bool, error) {
	return r.finish(ctx, session, model.StatusCompleted, finalRemainingSeconds, now)
}

// Cancel is Complete with a canceled outcome.
func (r *SessionRepository) Cancel(
	ctx context.Context,
	session *model.Session,
	finalRemainingSeconds int,
	now time.Time,
) (*model.Session, bool, error) {
	return r.finish(ctx, session, model.StatusCanceled, finalRemainingSeconds, now)
}

func (r *SessionRepository) finish(
	ctx context.Context,
	session *model.Session,
	status model.SessionStatus,
	finalRemainingSeconds int,
	now time.Time,
) (*model.Session, bool, error) {
	remaining := clampRemaining(finalRemainingSeconds, session.PlannedDurationSeconds)
	actual := session.PlannedDurationSeconds - remaining

	res, err := r.db.ExecContext(
		ctx,
		`UPDATE study_sessions
		 SET status = ?,
		     ended_at = ?,
		     paused_at = NULL,
		     remaining_seconds = ?,
		     actual_duration_seconds = ?,
		     updated_at = ?
		 WHERE id = ? AND status IN ('active', 'paused')`,
		string(status),
		formatTime(now),
		remaining,
		actual,
		formatTime(now),
		session.ID,
	)
	if err != nil {
		return nil, false, storeErr("finish session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, storeErr("finish session", err)
	}

	stored, err := r.Get(ctx, session.ID)
	if err != nil {
		if affected == 0 {
			return nil, false, err
		}
		// The write landed; report it even though the read-back failed.
		stored = session.Clone()
		stored.Status = status
		stored.EndedAt = &now
		stored.PausedAt = nil
		stored.RemainingSeconds = remaining
		stored.ActualDurationSeconds = actual
		stored.UpdatedAt = now
	}
	if affected == 0 && !stored.Status.Terminal() {
		return nil, false, fmt.Errorf("finish session %s: %w", session.ID, apperrors.ErrInvalidTransition)
	}
	return stored, affected > 0, nil
}

func (r *SessionRepository) afterTransition(ctx context.Context, res sql.Result, id, op string) (*model.Session, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storeErr(op, err)
	}
	stored, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return stored, fmt.Errorf("%s %s from %s: %w", op, id, stored.Status, apperrors.ErrInvalidTransition)
	}
	return stored, nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM study_sessions
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	return collectSessions(rows, limit)
}

// ListStaleActive returns active sessions of any user whose running interval began at or
// before cutoff.
func (r *SessionRepository) ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]model.Session, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM study_sessions
		 WHERE status = 'active' AND started_at <= ?
		 ORDER BY started_at ASC
		 LIMIT ?`,
		formatTime(cutoff),
		limit,
	)
	if err != nil {
		return nil, storeErr("list stale sessions", err)
	}
	return collectSessions(rows, limit)
}

func collectSessions(rows *sql.Rows, capacity int) ([]model.Session, error) {
	defer rows.Close()

	sessions := make([]model.Session, 0, capacity)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate sessions", err)
	}
	return sessions, nil
}

func scanSession(s scanner) (*model.Session, error) {
	session := model.Session{}
	var sessionType, status string
	var startedAt, createdAt, updatedAt string
	var pausedAt, endedAt sql.NullString
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&session.SubjectID,
		&sessionType,
		&session.PlannedDurationSeconds,
		&startedAt,
		&pausedAt,
		&session.RemainingSeconds,
		&status,
		&endedAt,
		&session.ActualDurationSeconds,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.SessionType = model.SessionType(sessionType)
	session.Status = model.SessionStatus(status)

	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	if session.PausedAt, err = parseNullTime(pausedAt); err != nil {
		return nil, fmt.Errorf("parse session paused_at: %w", err)
	}
	if session.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, fmt.Errorf("parse session ended_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}
	return &session, nil
}

func clampRemaining(remaining, planned int) int {
	if remaining < 0 {
		return 0
	}
	if remaining > planned {
		return planned
	}
	return remaining
}
