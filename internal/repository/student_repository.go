package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/edukit-vn/tcm-api/internal/models"
)

// StudentRepository handles read access to students for the enrollment
// workflow. Student lifecycle management lives in the account service.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, full_name, phone, parent_id, active, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindDetailByID returns a student joined with guardian contact info.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.full_name, s.phone, s.parent_id, s.active, s.created_at, s.updated_at,
        p.full_name AS parent_name, p.phone AS parent_phone
        FROM students s
        LEFT JOIN parents p ON p.id = s.parent_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListAvailableForClass returns active students without a blocking enrollment
// in the given class. Blocking means any status outside stopped/graduated.
func (r *StudentRepository) ListAvailableForClass(ctx context.Context, classID string, filter models.StudentFilter) ([]models.Student, int, error) {
	base := `FROM students s
        WHERE s.active = TRUE
        AND NOT EXISTS (
            SELECT 1 FROM enrollments e
            WHERE e.student_id = s.id AND e.class_id = $1 AND e.status NOT IN ($2, $3)
        )`
	args := []interface{}{classID, models.EnrollmentStatusStopped, models.EnrollmentStatusGraduated}

	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(s.full_name) LIKE $%d OR s.phone LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"full_name": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.full_name, s.phone, s.parent_id, s.active, s.created_at, s.updated_at
        %s ORDER BY s.%s %s LIMIT %d OFFSET %d`, base, sortBy, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list available students: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count available students: %w", err)
	}
	return students, total, nil
}
