package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edukit-vn/tcm-api/pkg/jobs"
)

// Job types dispatched onto the notification queue.
const (
	JobTypeClassEnrolled      = "class_enrolled"
	JobTypeStudentTransferred = "student_transferred"
)

// Notifier is the best-effort notification capability injected into the
// enrollment service. Implementations must never block the caller on
// delivery; failures are logged, not surfaced.
type Notifier interface {
	ClassEnrolled(classID string, studentIDs []string)
	StudentTransferred(studentID string, parentID *string, fromClassID, toClassID string)
}

type enqueuer interface {
	Enqueue(job jobs.Job) error
}

// ClassEnrolledNotice is the payload for a bulk-enrollment announcement.
type ClassEnrolledNotice struct {
	ClassID    string   `json:"class_id"`
	StudentIDs []string `json:"student_ids"`
}

// TransferNotice is the payload for a parent-facing transfer notification.
type TransferNotice struct {
	StudentID   string  `json:"student_id"`
	ParentID    *string `json:"parent_id,omitempty"`
	FromClassID string  `json:"from_class_id"`
	ToClassID   string  `json:"to_class_id"`
}

// NotificationService hands notifications to the background queue. Enqueue
// failures are swallowed after logging so the transactional result is never
// affected.
type NotificationService struct {
	queue  enqueuer
	logger *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(queue enqueuer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger}
}

// ClassEnrolled announces newly enrolled students to a class.
func (s *NotificationService) ClassEnrolled(classID string, studentIDs []string) {
	s.enqueue(JobTypeClassEnrolled, ClassEnrolledNotice{ClassID: classID, StudentIDs: studentIDs})
}

// StudentTransferred notifies a student's guardian about a class transfer.
func (s *NotificationService) StudentTransferred(studentID string, parentID *string, fromClassID, toClassID string) {
	s.enqueue(JobTypeStudentTransferred, TransferNotice{
		StudentID:   studentID,
		ParentID:    parentID,
		FromClassID: fromClassID,
		ToClassID:   toClassID,
	})
}

func (s *NotificationService) enqueue(jobType string, payload interface{}) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: payload}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("type", jobType), zap.Error(err))
	}
}

// NewNotificationHandler returns the queue handler that performs delivery.
// Actual channels (email, app push) are owned by the messaging service; this
// handler records the dispatch so operators can trace it.
func NewNotificationHandler(logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		logger.Info("notification dispatched",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Any("payload", job.Payload))
		return nil
	}
}
