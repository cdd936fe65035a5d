package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edukit-vn/tcm-api/internal/models"
)

type mockScheduleSource struct {
	refs        []models.ClassScheduleRef
	excludeSeen string
}

func (m *mockScheduleSource) ListStudyingSchedules(ctx context.Context, studentID, excludeClassID string) ([]models.ClassScheduleRef, error) {
	m.excludeSeen = excludeClassID
	if excludeClassID == "" {
		return m.refs, nil
	}
	var out []models.ClassScheduleRef
	for _, ref := range m.refs {
		if ref.ClassID != excludeClassID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func slotJSON(day int, start, end string) types.JSONText {
	return types.JSONText(fmt.Sprintf(`[{"dayOfWeek":%d,"startTime":"%s","endTime":"%s"}]`, day, start, end))
}

func TestConflictCheckerDetectsOverlap(t *testing.T) {
	source := &mockScheduleSource{refs: []models.ClassScheduleRef{
		{ClassID: "class-x", ClassName: "Toán 9A", RecurringSchedule: slotJSON(1, "08:00", "09:30")},
	}}
	checker := NewConflictChecker(source, zap.NewNop())

	conflicts, err := checker.Check(context.Background(), "stu-1",
		[]models.TimeSlot{{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}}, "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "class-x", conflicts[0].ClassID)
	assert.Equal(t, 1, conflicts[0].DayOfWeek)
	assert.Equal(t, "09:00-10:00", conflicts[0].NewClassTime)
	assert.Equal(t, "08:00-09:30", conflicts[0].ConflictingClassTime)
}

func TestConflictCheckerNoFalsePositives(t *testing.T) {
	source := &mockScheduleSource{refs: []models.ClassScheduleRef{
		{ClassID: "class-x", ClassName: "Toán 9A", RecurringSchedule: slotJSON(1, "08:00", "09:00")},
	}}
	checker := NewConflictChecker(source, zap.NewNop())

	// Adjacent ranges share a boundary but do not overlap.
	conflicts, err := checker.Check(context.Background(), "stu-1",
		[]models.TimeSlot{{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}}, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	// Same time on a different day.
	conflicts, err = checker.Check(context.Background(), "stu-1",
		[]models.TimeSlot{{DayOfWeek: 2, StartTime: "08:00", EndTime: "09:00"}}, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConflictCheckerMultipleSlots(t *testing.T) {
	source := &mockScheduleSource{refs: []models.ClassScheduleRef{
		{ClassID: "class-x", ClassName: "Toán 9A", RecurringSchedule: types.JSONText(
			`[{"dayOfWeek":1,"startTime":"08:00","endTime":"09:30"},{"dayOfWeek":1,"startTime":"09:15","endTime":"10:30"}]`)},
	}}
	checker := NewConflictChecker(source, zap.NewNop())

	conflicts, err := checker.Check(context.Background(), "stu-1",
		[]models.TimeSlot{{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}}, "")
	require.NoError(t, err)
	assert.Len(t, conflicts, 2, "each overlapping slot of one class reports its own conflict")
}

func TestConflictCheckerExcludesClass(t *testing.T) {
	source := &mockScheduleSource{refs: []models.ClassScheduleRef{
		{ClassID: "class-old", ClassName: "Toán 9A", RecurringSchedule: slotJSON(1, "08:00", "09:30")},
	}}
	checker := NewConflictChecker(source, zap.NewNop())

	conflicts, err := checker.Check(context.Background(), "stu-1",
		[]models.TimeSlot{{DayOfWeek: 1, StartTime: "08:30", EndTime: "09:00"}}, "class-old")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, "class-old", source.excludeSeen)
}

func TestConflictCheckerToleratesMalformedSchedule(t *testing.T) {
	source := &mockScheduleSource{refs: []models.ClassScheduleRef{
		{ClassID: "class-x", ClassName: "Toán 9A", RecurringSchedule: types.JSONText(`{"broken":true}`)},
		{ClassID: "class-y", ClassName: "Lý 9B"},
	}}
	checker := NewConflictChecker(source, zap.NewNop())

	conflicts, err := checker.Check(context.Background(), "stu-1",
		[]models.TimeSlot{{DayOfWeek: 1, StartTime: "08:00", EndTime: "09:00"}}, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConflictCheckerEmptyCandidate(t *testing.T) {
	source := &mockScheduleSource{}
	checker := NewConflictChecker(source, zap.NewNop())

	conflicts, err := checker.Check(context.Background(), "stu-1", nil, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
