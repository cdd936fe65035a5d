package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edukit-vn/tcm-api/internal/models"
	appErrors "github.com/edukit-vn/tcm-api/pkg/errors"
)

type scheduleSource interface {
	ListStudyingSchedules(ctx context.Context, studentID, excludeClassID string) ([]models.ClassScheduleRef, error)
}

// ConflictChecker detects weekly schedule overlaps between a candidate class
// and the classes a student is already studying in.
type ConflictChecker struct {
	schedules scheduleSource
	logger    *zap.Logger
}

// NewConflictChecker constructs a ConflictChecker.
func NewConflictChecker(schedules scheduleSource, logger *zap.Logger) *ConflictChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictChecker{schedules: schedules, logger: logger}
}

// Check compares every candidate slot against every slot of the student's
// studying classes, excluding excludeClassID when set (used by transfers so
// the class being left is not compared). Invalid slots on either side are
// skipped rather than reported, so partially broken schedule data degrades to
// fewer checks instead of a hard failure. An empty result means no conflict.
func (c *ConflictChecker) Check(ctx context.Context, studentID string, candidate []models.TimeSlot, excludeClassID string) ([]models.ScheduleConflict, error) {
	if len(candidate) == 0 {
		return nil, nil
	}

	refs, err := c.schedules.ListStudyingSchedules(ctx, studentID, excludeClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student schedules")
	}

	var conflicts []models.ScheduleConflict
	for _, ref := range refs {
		existing := models.DecodeSchedule(ref.RecurringSchedule)
		if len(existing) == 0 {
			c.logger.Debug("class has no usable schedule, skipping",
				zap.String("class_id", ref.ClassID), zap.String("student_id", studentID))
			continue
		}
		for _, slot := range existing {
			for _, cand := range candidate {
				if cand.Overlaps(slot) {
					conflicts = append(conflicts, models.ScheduleConflict{
						ClassID:              ref.ClassID,
						ClassName:            ref.ClassName,
						DayOfWeek:            slot.DayOfWeek,
						NewClassTime:         fmt.Sprintf("%s-%s", cand.StartTime, cand.EndTime),
						ConflictingClassTime: fmt.Sprintf("%s-%s", slot.StartTime, slot.EndTime),
					})
				}
			}
		}
	}
	return conflicts, nil
}
