package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
)

// TimeSlot is one weekly meeting window of a class. DayOfWeek follows
// time.Weekday numbering (0 = Sunday). Times are "HH:MM" wall-clock strings.
type TimeSlot struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Valid reports whether the slot carries a usable day and time range.
func (t TimeSlot) Valid() bool {
	if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
		return false
	}
	start, err := MinutesOfDay(t.StartTime)
	if err != nil {
		return false
	}
	end, err := MinutesOfDay(t.EndTime)
	if err != nil {
		return false
	}
	return start < end
}

// Overlaps reports whether two slots collide: same weekday and half-open
// interval overlap, so back-to-back slots (end == start) do not conflict.
func (t TimeSlot) Overlaps(other TimeSlot) bool {
	if t.DayOfWeek != other.DayOfWeek {
		return false
	}
	if !t.Valid() || !other.Valid() {
		return false
	}
	s1, _ := MinutesOfDay(t.StartTime)
	e1, _ := MinutesOfDay(t.EndTime)
	s2, _ := MinutesOfDay(other.StartTime)
	e2, _ := MinutesOfDay(other.EndTime)
	return s1 < e2 && s2 < e1
}

// MinutesOfDay converts an "HH:MM" string to minutes since midnight.
func MinutesOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", hhmm)
	}
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q", hhmm)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", hhmm)
	}
	return h*60 + m, nil
}

// DecodeSchedule parses a recurring schedule JSONB payload. Null or malformed
// payloads decode to an empty schedule; slot-level validity is checked by the
// conflict checker so one broken slot does not fail the whole class.
func DecodeSchedule(raw types.JSONText) []TimeSlot {
	if len(raw) == 0 {
		return nil
	}
	var slots []TimeSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil
	}
	return slots
}

// DayName returns the Vietnamese weekday label used in operator messages.
func DayName(dayOfWeek int) string {
	switch dayOfWeek {
	case 0:
		return "Chủ nhật"
	case 1, 2, 3, 4, 5, 6:
		return fmt.Sprintf("Thứ %d", dayOfWeek+1)
	default:
		return fmt.Sprintf("Ngày %d", dayOfWeek)
	}
}

// ScheduleConflict records one overlap between a candidate slot and a slot of
// a class the student is already studying in.
type ScheduleConflict struct {
	ClassID              string `json:"class_id"`
	ClassName            string `json:"class_name"`
	DayOfWeek            int    `json:"day_of_week"`
	NewClassTime         string `json:"new_class_time"`
	ConflictingClassTime string `json:"conflicting_class_time"`
}

// Describe renders the conflict for operator-facing messages.
func (c ScheduleConflict) Describe() string {
	return fmt.Sprintf("lớp %s (%s %s trùng với %s)", c.ClassName, DayName(c.DayOfWeek), c.ConflictingClassTime, c.NewClassTime)
}

// ScheduleConflictError carries the structured conflict list alongside the
// joined human-readable message.
type ScheduleConflictError struct {
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// NewScheduleConflictError builds the error from a non-empty conflict list.
func NewScheduleConflictError(conflicts []ScheduleConflict) *ScheduleConflictError {
	descriptions := make([]string, len(conflicts))
	for i, c := range conflicts {
		descriptions[i] = c.Describe()
	}
	return &ScheduleConflictError{
		Message:   "Lịch học bị trùng: " + strings.Join(descriptions, "; "),
		Conflicts: conflicts,
	}
}
