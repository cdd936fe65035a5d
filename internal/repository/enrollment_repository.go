package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edukit-vn/tcm-api/internal/models"
)

// ErrDuplicateEnrollment is returned when a guarded insert finds a blocking
// enrollment for the same student and class.
var ErrDuplicateEnrollment = errors.New("duplicate active enrollment")

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentDetailColumns = `e.id, e.student_id, e.class_id, e.status, e.semester, e.enrolled_at, e.completed_at, e.completion_notes,
        s.full_name AS student_name, s.active AS student_active, c.name AS class_name, c.status AS class_status`

const enrollmentDetailJoins = `FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"status":       "e.status",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT %s %s%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		enrollmentDetailColumns, enrollmentDetailJoins, clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", enrollmentDetailJoins, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, status, semester, enrolled_at, completed_at, completion_notes
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with student and class context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE e.id = $1`, enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsBlocking checks for an enrollment that blocks a new one for the same
// student and class: any status outside stopped/graduated, withdrawn included.
func (r *EnrollmentRepository) ExistsBlocking(ctx context.Context, studentID, classID string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM enrollments
        WHERE student_id = $1 AND class_id = $2 AND status NOT IN ($3, $4))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID,
		models.EnrollmentStatusStopped, models.EnrollmentStatusGraduated); err != nil {
		return false, fmt.Errorf("check blocking enrollment: %w", err)
	}
	return exists, nil
}

// CountBlockingByClass counts enrollments that consume a capacity slot.
func (r *EnrollmentRepository) CountBlockingByClass(ctx context.Context, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status NOT IN ($2, $3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID,
		models.EnrollmentStatusStopped, models.EnrollmentStatusGraduated); err != nil {
		return 0, fmt.Errorf("count class enrollments: %w", err)
	}
	return count, nil
}

// ListStudyingSchedules returns the schedules of classes the student is
// currently studying in, optionally excluding one class. This is the narrower
// predicate used only by the conflict checker.
func (r *EnrollmentRepository) ListStudyingSchedules(ctx context.Context, studentID, excludeClassID string) ([]models.ClassScheduleRef, error) {
	query := `SELECT c.id AS class_id, c.name AS class_name, c.recurring_schedule
        FROM enrollments e
        JOIN classes c ON c.id = e.class_id
        WHERE e.student_id = $1 AND e.status = $2`
	args := []interface{}{studentID, models.EnrollmentStatusStudying}
	if excludeClassID != "" {
		query += fmt.Sprintf(" AND e.class_id <> $%d", len(args)+1)
		args = append(args, excludeClassID)
	}

	var refs []models.ClassScheduleRef
	if err := r.db.SelectContext(ctx, &refs, query, args...); err != nil {
		return nil, fmt.Errorf("list studying schedules: %w", err)
	}
	return refs, nil
}

// Create inserts a new enrollment guarded against duplicates: the insert only
// lands when no blocking enrollment exists, closing the check-then-act window
// in a single statement. Returns ErrDuplicateEnrollment when blocked.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	prepareEnrollment(enrollment)
	return r.guardedInsert(ctx, r.db, enrollment)
}

// Transfer withdraws the old enrollment and creates the replacement in a
// single transaction.
func (r *EnrollmentRepository) Transfer(ctx context.Context, oldID string, notes *string, newEnrollment *models.Enrollment) error {
	prepareEnrollment(newEnrollment)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const withdraw = `UPDATE enrollments SET status = $2, completion_notes = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, withdraw, oldID, models.EnrollmentStatusWithdrawn, notes); err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}

	if err := r.guardedInsert(ctx, tx, newEnrollment); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) guardedInsert(ctx context.Context, ext sqlx.ExtContext, enrollment *models.Enrollment) error {
	const query = `INSERT INTO enrollments (id, student_id, class_id, status, semester, enrolled_at, completed_at, completion_notes)
        SELECT $1, $2, $3, $4, $5, $6, NULL, NULL
        WHERE NOT EXISTS (
            SELECT 1 FROM enrollments
            WHERE student_id = $2 AND class_id = $3 AND status NOT IN ($7, $8))`
	res, err := ext.ExecContext(ctx, query,
		enrollment.ID, enrollment.StudentID, enrollment.ClassID, enrollment.Status,
		enrollment.Semester, enrollment.EnrolledAt,
		models.EnrollmentStatusStopped, models.EnrollmentStatusGraduated)
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateEnrollment
	}
	return nil
}

func prepareEnrollment(enrollment *models.Enrollment) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusStudying
	}
}

// UpdateStatus updates status and terminal bookkeeping for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, completedAt *time.Time, completionNotes *string) error {
	const query = `UPDATE enrollments SET status = $2, completed_at = $3, completion_notes = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, completedAt, completionNotes); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// Delete hard-deletes an enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// ListByStudent returns all enrollments of a student with class context.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE e.student_id = $1 ORDER BY e.enrolled_at DESC`,
		enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}
