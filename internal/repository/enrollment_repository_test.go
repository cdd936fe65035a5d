package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukit-vn/tcm-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsBlocking(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("student-1", "class-1", "stopped", "graduated").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsBlocking(context.Background(), "student-1", "class-1")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountBlockingByClass(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status NOT IN ($2, $3)")).
		WithArgs("class-1", "stopped", "graduated").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountBlockingByClass(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "student-1", "class-1", "studying", nil, sqlmock.AnyArg(), "stopped", "graduated").
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "student-1", ClassID: "class-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusStudying, enrollment.Status)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDuplicateBlocked(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	// The guarded insert lands zero rows when a blocking enrollment exists.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "student-1", ClassID: "class-1"})
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransfer(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	notes := "chuyển lớp"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, completion_notes = $3 WHERE id = $1")).
		WithArgs("enr-old", "withdrawn", &notes).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "student-1", "class-2", "not_been_updated", nil, sqlmock.AnyArg(), "stopped", "graduated").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newEnrollment := &models.Enrollment{
		StudentID: "student-1",
		ClassID:   "class-2",
		Status:    models.EnrollmentStatusNotBeenUpdated,
	}
	require.NoError(t, repo.Transfer(context.Background(), "enr-old", &notes, newEnrollment))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransferRollsBackOnDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transfer(context.Background(), "enr-old", nil, &models.Enrollment{
		StudentID: "student-1",
		ClassID:   "class-2",
	})
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListStudyingSchedules(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	schedule := []byte(`[{"dayOfWeek":1,"startTime":"08:00","endTime":"09:30"}]`)
	rows := sqlmock.NewRows([]string{"class_id", "class_name", "recurring_schedule"}).
		AddRow("class-1", "Toán 9A", schedule)
	mock.ExpectQuery(regexp.QuoteMeta("AND e.class_id <> $3")).
		WithArgs("student-1", "studying", "class-old").
		WillReturnRows(rows)

	refs, err := repo.ListStudyingSchedules(context.Background(), "student-1", "class-old")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Toán 9A", refs[0].ClassName)

	slots := models.DecodeSchedule(refs[0].RecurringSchedule)
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].DayOfWeek)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()
	notes := "Dừng học"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, completed_at = $3, completion_notes = $4 WHERE id = $1")).
		WithArgs("enr-1", "stopped", sqlmock.AnyArg(), &notes).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusStopped, &now, &notes)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "enr-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "class_id", "status", "semester", "enrolled_at", "completed_at", "completion_notes",
		"student_name", "student_active", "class_name", "class_status",
	}).AddRow("enr-1", "student-1", "class-1", "studying", nil, now, nil, nil, "Nguyễn Văn A", true, "Toán 9A", "active")

	mock.ExpectQuery(regexp.QuoteMeta("e.class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{ClassID: "class-1"})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Nguyễn Văn A", enrollments[0].StudentName)
	assert.Equal(t, models.ClassStatusActive, enrollments[0].ClassStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
