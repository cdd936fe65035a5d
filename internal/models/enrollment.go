package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. "not_been_updated" is the initial status for
// classes with no scheduled sessions yet.
const (
	EnrollmentStatusStudying       EnrollmentStatus = "studying"
	EnrollmentStatusNotBeenUpdated EnrollmentStatus = "not_been_updated"
	EnrollmentStatusWithdrawn      EnrollmentStatus = "withdrawn"
	EnrollmentStatusStopped        EnrollmentStatus = "stopped"
	EnrollmentStatusGraduated      EnrollmentStatus = "graduated"
)

// KnownEnrollmentStatus reports whether the value is a recognised status.
func KnownEnrollmentStatus(s EnrollmentStatus) bool {
	switch s {
	case EnrollmentStatusStudying, EnrollmentStatusNotBeenUpdated,
		EnrollmentStatusWithdrawn, EnrollmentStatusStopped, EnrollmentStatusGraduated:
		return true
	}
	return false
}

// Terminal reports whether the status ends the enrollment. Non-terminal
// enrollments block duplicates and count toward capacity; note that
// "withdrawn" is deliberately non-terminal for those checks.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusStopped || s == EnrollmentStatusGraduated
}

// Enrollment is a student's registration in a class.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	ClassID         string           `db:"class_id" json:"class_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	Semester        *string          `db:"semester" json:"semester,omitempty"`
	EnrolledAt      time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt     *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CompletionNotes *string          `db:"completion_notes" json:"completion_notes,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and class summaries.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string      `db:"student_name" json:"student_name"`
	StudentActive bool        `db:"student_active" json:"student_active"`
	ClassName     string      `db:"class_name" json:"class_name"`
	ClassStatus   ClassStatus `db:"class_status" json:"class_status"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Status    EnrollmentStatus
	Semester  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassScheduleRef pairs a class identity with its raw recurring schedule,
// as fetched for the conflict checker.
type ClassScheduleRef struct {
	ClassID           string         `db:"class_id"`
	ClassName         string         `db:"class_name"`
	RecurringSchedule types.JSONText `db:"recurring_schedule"`
}

// BulkEnrollOutcome reports per-student results of a bulk enrollment.
type BulkEnrollOutcome struct {
	Success []BulkEnrollSuccess `json:"success"`
	Failed  []BulkEnrollFailure `json:"failed"`
	Message string              `json:"message"`
}

// BulkEnrollSuccess records one successfully enrolled student.
type BulkEnrollSuccess struct {
	StudentID    string `json:"student_id"`
	EnrollmentID string `json:"enrollment_id"`
}

// BulkEnrollFailure records one student that could not be enrolled.
type BulkEnrollFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// TransferOutcome returns both sides of a completed class transfer.
type TransferOutcome struct {
	OldEnrollment EnrollmentDetail `json:"old_enrollment"`
	NewEnrollment EnrollmentDetail `json:"new_enrollment"`
}
