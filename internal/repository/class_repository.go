package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edukit-vn/tcm-api/internal/models"
)

// ClassRepository handles read access to classes for the enrollment workflow.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class with its recurring schedule payload.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, status, teacher_id, max_students, recurring_schedule, created_at, updated_at
        FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// CountScheduledSessions returns how many sessions exist for a class. A
// transfer into a class with zero sessions starts as not_been_updated.
func (r *ClassRepository) CountScheduledSessions(ctx context.Context, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE class_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class sessions: %w", err)
	}
	return count, nil
}
