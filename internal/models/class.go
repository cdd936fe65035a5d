package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ClassStatus represents the lifecycle of a class offering.
type ClassStatus string

// Possible class statuses.
const (
	ClassStatusActive    ClassStatus = "active"
	ClassStatusReady     ClassStatus = "ready"
	ClassStatusCancelled ClassStatus = "cancelled"
	ClassStatusWithdrawn ClassStatus = "withdrawn"
)

// AcceptsStudying reports whether a class in this status may hold studying
// enrollments.
func (s ClassStatus) AcceptsStudying() bool {
	return s == ClassStatusActive || s == ClassStatusReady
}

// Terminated reports whether the class can no longer change enrollments.
func (s ClassStatus) Terminated() bool {
	return s == ClassStatusCancelled || s == ClassStatusWithdrawn
}

// Class represents a course offering with a weekly recurring schedule.
// MaxStudents is nil for unlimited capacity. RecurringSchedule is stored as a
// JSONB column and decoded on demand via Schedule().
type Class struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Status            ClassStatus    `db:"status" json:"status"`
	TeacherID         *string        `db:"teacher_id" json:"teacher_id,omitempty"`
	MaxStudents       *int           `db:"max_students" json:"max_students,omitempty"`
	RecurringSchedule types.JSONText `db:"recurring_schedule" json:"recurring_schedule,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Schedule decodes the recurring schedule column into typed slots. A null or
// malformed payload yields an empty schedule rather than an error; individual
// slots are validated by the caller.
func (c *Class) Schedule() []TimeSlot {
	return DecodeSchedule(c.RecurringSchedule)
}

// ClassCapacity reports occupancy of a class against its configured maximum.
// AvailableSlots is nil when the class is uncapped.
type ClassCapacity struct {
	ClassID         string `json:"class_id"`
	MaxStudents     *int   `json:"max_students"`
	CurrentStudents int    `json:"current_students"`
	AvailableSlots  *int   `json:"available_slots"`
	IsFull          bool   `json:"is_full"`
}
