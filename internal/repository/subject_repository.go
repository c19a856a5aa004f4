package repository

import (
	"context"
	"database/sql"
)

// SubjectRepository is a read-only view of the subject catalog.
type SubjectRepository struct {
	db *sql.DB
}

func NewSubjectRepository(db *sql.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) Name(ctx context.Context, userID, subjectID string) (string, error) {
	var name string
	err := r.db.QueryRowContext(
		ctx,
		`SELECT name FROM subjects WHERE id = ? AND user_id = ?`,
		subjectID,
		userID,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", storeErr("get subject name", err)
	}
	return name, nil
}
