package repository

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "studyplan/backend/internal/errors"
	"studyplan/backend/internal/model"
)

// StatisticsRepository stores per-subject aggregates. Writes are guarded by a version
// column; a lost race surfaces as ErrConflict.
type StatisticsRepository struct {
	db *sql.DB
}

func NewStatisticsRepository(db *sql.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

func (r *StatisticsRepository) Get(ctx context.Context, userID, subjectID string) (*model.SubjectStatistics, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT user_id, subject_id, total_focus_seconds, sessions_completed,
		        last_session_completed_at, version, updated_at
		 FROM subject_statistics
		 WHERE user_id = ? AND subject_id = ?`,
		userID,
		subjectID,
	)
	stats, err := scanStatistics(row)
	if err != nil && err != ErrNotFound {
		return nil, storeErr("get statistics", err)
	}
	return stats, err
}

// Insert creates the first row for (user, subject) at version 1.
func (r *StatisticsRepository) Insert(ctx context.Context, stats *model.SubjectStatistics) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO subject_statistics (
			user_id, subject_id, total_focus_seconds, sessions_completed,
			last_session_completed_at, version, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, ?)`,
		stats.UserID,
		stats.SubjectID,
		stats.TotalFocusSeconds,
		stats.SessionsCompleted,
		nullableTime(stats.LastSessionCompletedAt),
		formatTime(stats.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert statistics: %w", apperrors.ErrConflict)
	}
	if err != nil {
		return storeErr("insert statistics", err)
	}
	stats.Version = 1
	return nil
}

// Update writes stats only if the stored version still equals stats.Version.
func (r *StatisticsRepository) Update(ctx context.Context, stats *model.SubjectStatistics) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE subject_statistics
		 SET total_focus_seconds = ?,
		     sessions_completed = ?,
		     last_session_completed_at = ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE user_id = ? AND subject_id = ? AND version = ?`,
		stats.TotalFocusSeconds,
		stats.SessionsCompleted,
		nullableTime(stats.LastSessionCompletedAt),
		formatTime(stats.UpdatedAt),
		stats.UserID,
		stats.SubjectID,
		stats.Version,
	)
	if err != nil {
		return storeErr("update statistics", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("update statistics", err)
	}
	if affected == 0 {
		return fmt.Errorf("update statistics at version %d: %w", stats.Version, apperrors.ErrConflict)
	}
	stats.Version++
	return nil
}

func (r *StatisticsRepository) ListForUser(ctx context.Context, userID string) ([]model.SubjectStatistics, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT user_id, subject_id, total_focus_seconds, sessions_completed,
		        last_session_completed_at, version, updated_at
		 FROM subject_statistics
		 WHERE user_id = ?
		 ORDER BY total_focus_seconds DESC, subject_id ASC`,
		userID,
	)
	if err != nil {
		return nil, storeErr("list statistics", err)
	}
	defer rows.Close()

	items := make([]model.SubjectStatistics, 0)
	for rows.Next() {
		stats, scanErr := scanStatistics(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, *stats)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate statistics", err)
	}
	return items, nil
}

func scanStatistics(s scanner) (*model.SubjectStatistics, error) {
	stats := model.SubjectStatistics{}
	var lastCompleted sql.NullString
	var updatedAt string
	err := s.Scan(
		&stats.UserID,
		&stats.SubjectID,
		&stats.TotalFocusSeconds,
		&stats.SessionsCompleted,
		&lastCompleted,
		&stats.Version,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan statistics: %w", err)
	}

	if stats.LastSessionCompletedAt, err = parseNullTime(lastCompleted); err != nil {
		return nil, fmt.Errorf("parse statistics last_session_completed_at: %w", err)
	}
	if stats.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse statistics updated_at: %w", err)
	}
	return &stats, nil
}
