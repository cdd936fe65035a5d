package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edukit-vn/tcm-api/internal/models"
	"github.com/edukit-vn/tcm-api/internal/repository"
	appErrors "github.com/edukit-vn/tcm-api/pkg/errors"
)

// DefaultStopNote is stamped on stopped enrollments without an explicit note.
const DefaultStopNote = "Dừng học"

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsBlocking(ctx context.Context, studentID, classID string) (bool, error)
	CountBlockingByClass(ctx context.Context, classID string) (int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Transfer(ctx context.Context, oldID string, notes *string, newEnrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, completedAt *time.Time, completionNotes *string) error
	Delete(ctx context.Context, id string) error
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ListAvailableForClass(ctx context.Context, classID string, filter models.StudentFilter) ([]models.Student, int, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	CountScheduledSessions(ctx context.Context, classID string) (int, error)
}

type conflictChecker interface {
	Check(ctx context.Context, studentID string, candidate []models.TimeSlot, excludeClassID string) ([]models.ScheduleConflict, error)
}

type capacityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EnrollStudentRequest describes enrollment creation payload.
type EnrollStudentRequest struct {
	StudentID string  `json:"studentId" validate:"required"`
	ClassID   string  `json:"classId" validate:"required"`
	Semester  *string `json:"semester,omitempty"`
}

// BulkEnrollRequest describes bulk enrollment payload.
type BulkEnrollRequest struct {
	StudentIDs       []string `json:"studentIds" validate:"required,min=1,dive,required"`
	ClassID          string   `json:"classId" validate:"required"`
	Semester         *string  `json:"semester,omitempty"`
	OverrideCapacity bool     `json:"overrideCapacity,omitempty"`
}

// UpdateStatusRequest describes a status transition payload.
type UpdateStatusRequest struct {
	Status          models.EnrollmentStatus `json:"status" validate:"required"`
	CompletionNotes *string                 `json:"completionNotes,omitempty"`
}

// TransferRequest describes a class transfer payload.
type TransferRequest struct {
	NewClassID string  `json:"newClassId" validate:"required"`
	Reason     *string `json:"reason,omitempty"`
	Semester   *string `json:"semester,omitempty"`
}

// EnrollmentService orchestrates the enrollment workflow: capacity gating,
// schedule conflict checking and the enrollment mutations themselves.
type EnrollmentService struct {
	repo        enrollmentRepository
	students    studentReader
	classes     classReader
	conflicts   conflictChecker
	notifier    Notifier
	cache       capacityCache
	capacityTTL time.Duration
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// EnrollmentServiceConfig bundles optional collaborators.
type EnrollmentServiceConfig struct {
	Notifier    Notifier
	Cache       capacityCache
	CapacityTTL time.Duration
	Metrics     *MetricsService
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, classes classReader, conflicts conflictChecker, cfg EnrollmentServiceConfig, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CapacityTTL <= 0 {
		cfg.CapacityTTL = 30 * time.Second
	}
	return &EnrollmentService{
		repo:        repo,
		students:    students,
		classes:     classes,
		conflicts:   conflicts,
		notifier:    cfg.Notifier,
		cache:       cfg.Cache,
		capacityTTL: cfg.CapacityTTL,
		metrics:     cfg.Metrics,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListByClass returns the roster of one class.
func (s *EnrollmentService) ListByClass(ctx context.Context, classID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, nil, err
	}
	filter.ClassID = classID
	return s.List(ctx, filter)
}

// ListByStudent returns all enrollments of one student.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student enrollments")
	}
	return enrollments, nil
}

// AvailableStudents lists active students without a blocking enrollment in
// the class.
func (s *EnrollmentService) AvailableStudents(ctx context.Context, classID string, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, nil, err
	}
	students, total, err := s.students.ListAvailableForClass(ctx, classID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Capacity reports occupancy of a class. Results are cached briefly; the
// mutating paths always gate on a fresh count and invalidate this cache.
func (s *EnrollmentService) Capacity(ctx context.Context, classID string) (*models.ClassCapacity, error) {
	key := capacityKey(classID)
	if s.cache != nil {
		var cached models.ClassCapacity
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("capacity cache read failed", zap.String("class_id", classID), zap.Error(err))
		}
	}

	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	capacity, err := s.computeCapacity(ctx, class)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, capacity, s.capacityTTL); err != nil {
			s.logger.Warn("capacity cache write failed", zap.String("class_id", classID), zap.Error(err))
		}
	}
	return capacity, nil
}

// Enroll registers a student into a class after the account, duplicate,
// capacity and schedule gates all pass.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !student.Active {
		s.metrics.RecordEnrollmentOutcome("enroll", "rejected")
		return nil, appErrors.ErrInactiveAccount
	}
	class, err := s.loadClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	if err := s.gate(ctx, student.ID, class, ""); err != nil {
		s.metrics.RecordEnrollmentOutcome("enroll", "rejected")
		return nil, err
	}

	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Semester:  req.Semester,
		Status:    models.EnrollmentStatusStudying,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			s.metrics.RecordEnrollmentOutcome("enroll", "rejected")
			return nil, appErrors.ErrAlreadyEnrolled
		}
		s.metrics.RecordEnrollmentOutcome("enroll", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.invalidateCapacity(ctx, req.ClassID)
	s.metrics.RecordEnrollmentOutcome("enroll", "ok")

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// BulkEnroll enrolls many students into one class. Failures are isolated per
// student; a partial result is a reported outcome, not an error.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, req BulkEnrollRequest) (*models.BulkEnrollOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}

	class, err := s.loadClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	if !req.OverrideCapacity && class.MaxStudents != nil {
		current, err := s.repo.CountBlockingByClass(ctx, req.ClassID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		available := *class.MaxStudents - current
		if len(req.StudentIDs) > available {
			s.metrics.RecordEnrollmentOutcome("bulk_enroll", "rejected")
			return nil, appErrors.Clone(appErrors.ErrClassFull,
				fmt.Sprintf("lớp chỉ còn %d chỗ trống, không thể ghi danh %d học viên", max(available, 0), len(req.StudentIDs)))
		}
	}

	outcome := &models.BulkEnrollOutcome{
		Success: []models.BulkEnrollSuccess{},
		Failed:  []models.BulkEnrollFailure{},
	}
	for _, studentID := range req.StudentIDs {
		enrollmentID, err := s.enrollOne(ctx, studentID, class, req.Semester)
		if err != nil {
			outcome.Failed = append(outcome.Failed, models.BulkEnrollFailure{
				StudentID: studentID,
				Reason:    appErrors.FromError(err).Message,
			})
			continue
		}
		outcome.Success = append(outcome.Success, models.BulkEnrollSuccess{
			StudentID:    studentID,
			EnrollmentID: enrollmentID,
		})
	}

	if len(outcome.Success) > 0 {
		s.invalidateCapacity(ctx, req.ClassID)
		if s.notifier != nil {
			enrolled := make([]string, len(outcome.Success))
			for i, ok := range outcome.Success {
				enrolled[i] = ok.StudentID
			}
			s.notifier.ClassEnrolled(req.ClassID, enrolled)
		}
	}
	s.metrics.RecordEnrollmentOutcome("bulk_enroll", "ok")

	outcome.Message = fmt.Sprintf("Đã ghi danh %d/%d học viên", len(outcome.Success), len(req.StudentIDs))
	return outcome, nil
}

// enrollOne runs the per-student gates and insert for bulk enrollment.
func (s *EnrollmentService) enrollOne(ctx context.Context, studentID string, class *models.Class, semester *string) (string, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return "", err
	}
	if !student.Active {
		return "", appErrors.ErrInactiveAccount
	}
	if err := s.gateConflictsAndDuplicate(ctx, studentID, class, ""); err != nil {
		return "", err
	}

	enrollment := &models.Enrollment{
		StudentID: studentID,
		ClassID:   class.ID,
		Semester:  semester,
		Status:    models.EnrollmentStatusStudying,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return "", appErrors.ErrAlreadyEnrolled
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment.ID, nil
}

// UpdateStatus transitions an enrollment, guarding the "studying" target
// against classes without a teacher, classes not ready, and locked accounts.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !models.KnownEnrollmentStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("trạng thái %q không hợp lệ", req.Status))
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "không tìm thấy ghi danh")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	class, err := s.loadClass(ctx, detail.ClassID)
	if err != nil {
		return nil, err
	}

	if class.Status.Terminated() {
		return nil, appErrors.Clone(appErrors.ErrClassNotReady, "lớp học đã bị hủy hoặc đã kết thúc")
	}
	if req.Status == models.EnrollmentStatusStudying {
		if class.TeacherID == nil {
			return nil, appErrors.Clone(appErrors.ErrClassNotReady, "lớp học chưa có giáo viên")
		}
		if !class.Status.AcceptsStudying() {
			return nil, appErrors.Clone(appErrors.ErrClassNotReady, "lớp học chưa sẵn sàng")
		}
		if !detail.StudentActive {
			return nil, appErrors.ErrInactiveAccount
		}
	}

	completedAt := detail.CompletedAt
	completionNotes := req.CompletionNotes
	if completionNotes == nil {
		completionNotes = detail.CompletionNotes
	}
	switch req.Status {
	case models.EnrollmentStatusGraduated:
		now := time.Now().UTC()
		completedAt = &now
	case models.EnrollmentStatusStopped:
		if completionNotes == nil {
			note := DefaultStopNote
			completionNotes = &note
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status, completedAt, completionNotes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	s.invalidateCapacity(ctx, detail.ClassID)
	s.metrics.RecordEnrollmentOutcome("update_status", "ok")

	updated, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return updated, nil
}

// Transfer moves a student to a new class: the old enrollment is withdrawn
// and a replacement is created, both in one transaction. The old class is
// excluded from the schedule conflict check.
func (s *EnrollmentService) Transfer(ctx context.Context, id string, req TransferRequest) (*models.TransferOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}

	old, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "không tìm thấy ghi danh")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	newClass, err := s.loadClass(ctx, req.NewClassID)
	if err != nil {
		return nil, err
	}

	// Duplicate check runs before the withdraw, so transferring into the
	// class the student is already in is rejected here.
	if err := s.gate(ctx, old.StudentID, newClass, old.ClassID); err != nil {
		s.metrics.RecordEnrollmentOutcome("transfer", "rejected")
		return nil, err
	}

	sessionCount, err := s.classes.CountScheduledSessions(ctx, req.NewClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class sessions")
	}
	initialStatus := models.EnrollmentStatusStudying
	if sessionCount == 0 {
		initialStatus = models.EnrollmentStatusNotBeenUpdated
	}

	newEnrollment := &models.Enrollment{
		StudentID: old.StudentID,
		ClassID:   req.NewClassID,
		Semester:  req.Semester,
		Status:    initialStatus,
	}
	if err := s.repo.Transfer(ctx, id, req.Reason, newEnrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			s.metrics.RecordEnrollmentOutcome("transfer", "rejected")
			return nil, appErrors.ErrAlreadyEnrolled
		}
		s.metrics.RecordEnrollmentOutcome("transfer", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer enrollment")
	}

	s.invalidateCapacity(ctx, old.ClassID)
	s.invalidateCapacity(ctx, req.NewClassID)
	s.metrics.RecordEnrollmentOutcome("transfer", "ok")

	if s.notifier != nil {
		student, err := s.students.FindDetailByID(ctx, old.StudentID)
		if err != nil {
			s.logger.Warn("skipping transfer notification, student lookup failed",
				zap.String("student_id", old.StudentID), zap.Error(err))
		} else {
			s.notifier.StudentTransferred(student.ID, student.ParentID, old.ClassID, req.NewClassID)
		}
	}

	oldDetail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load old enrollment")
	}
	newDetail, err := s.repo.FindDetailByID(ctx, newEnrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load new enrollment")
	}
	return &models.TransferOutcome{OldEnrollment: *oldDetail, NewEnrollment: *newDetail}, nil
}

// Delete hard-deletes an enrollment after an existence check. There is no
// status gate on deletion.
func (s *EnrollmentService) Delete(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "không tìm thấy ghi danh")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.invalidateCapacity(ctx, enrollment.ClassID)
	return enrollment, nil
}

// gate runs capacity, duplicate and schedule checks for a single enrollment
// into class, excluding excludeClassID from conflict comparison.
func (s *EnrollmentService) gate(ctx context.Context, studentID string, class *models.Class, excludeClassID string) error {
	capacity, err := s.computeCapacity(ctx, class)
	if err != nil {
		return err
	}
	if capacity.IsFull {
		return appErrors.Clone(appErrors.ErrClassFull,
			fmt.Sprintf("lớp học đã đủ sĩ số (%d/%d)", capacity.CurrentStudents, *class.MaxStudents))
	}
	return s.gateConflictsAndDuplicate(ctx, studentID, class, excludeClassID)
}

func (s *EnrollmentService) gateConflictsAndDuplicate(ctx context.Context, studentID string, class *models.Class, excludeClassID string) error {
	exists, err := s.repo.ExistsBlocking(ctx, studentID, class.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return appErrors.ErrAlreadyEnrolled
	}

	conflicts, err := s.conflicts.Check(ctx, studentID, class.Schedule(), excludeClassID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		conflictErr := models.NewScheduleConflictError(conflicts)
		return appErrors.Wrap(conflictErr, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, conflictErr.Message)
	}
	return nil
}

func (s *EnrollmentService) computeCapacity(ctx context.Context, class *models.Class) (*models.ClassCapacity, error) {
	current, err := s.repo.CountBlockingByClass(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	capacity := &models.ClassCapacity{
		ClassID:         class.ID,
		MaxStudents:     class.MaxStudents,
		CurrentStudents: current,
	}
	if class.MaxStudents != nil {
		available := *class.MaxStudents - current
		capacity.AvailableSlots = &available
		capacity.IsFull = current >= *class.MaxStudents
	}
	return capacity, nil
}

func (s *EnrollmentService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "không tìm thấy học viên")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *EnrollmentService) loadClass(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "không tìm thấy lớp học")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *EnrollmentService) invalidateCapacity(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, capacityKey(classID)); err != nil {
		s.logger.Warn("capacity cache invalidation failed", zap.String("class_id", classID), zap.Error(err))
	}
}

func capacityKey(classID string) string {
	return "capacity:" + classID
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
