package models

import "time"

// Student represents a learner registered at the center.
type Student struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Phone     string    `db:"phone" json:"phone"`
	ParentID  *string   `db:"parent_id" json:"parent_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches Student with guardian contact info used by the
// transfer notification.
type StudentDetail struct {
	Student
	ParentName  *string `db:"parent_name" json:"parent_name,omitempty"`
	ParentPhone *string `db:"parent_phone" json:"parent_phone,omitempty"`
}

// StudentFilter encapsulates search parameters for student listings.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
