package models

import "time"

// Student is the profile a STUDENT account fills in after sign-up.
// ID is the profile key; UserID links back to the identity that owns it.
type Student struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	Roll       int       `db:"roll" json:"roll"`
	FullName   string    `db:"full_name" json:"full_name"`
	Phone      string    `db:"phone" json:"phone"`
	Age        int       `db:"age" json:"age"`
	FatherName string    `db:"father_name" json:"father_name"`
	Address    string    `db:"address" json:"address"`
	Section    string    `db:"section" json:"section"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Profile defaults applied when backfilling records created before these fields existed.
const (
	DefaultStudentPhone      = "+0000000000"
	DefaultStudentFatherName = "Unknown"
	DefaultStudentSection    = "A"
)

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	ClassID  string
	Page     int
	PageSize int
}
