package models

import "time"

// Months lists the month labels attendance is recorded against.
var Months = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// ValidMonth reports whether the label is one of Months.
func ValidMonth(m string) bool {
	for _, month := range Months {
		if month == m {
			return true
		}
	}
	return false
}

// Attendance is the number of days a student attended in one month.
type Attendance struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Year      int       `db:"year" json:"year"`
	Month     string    `db:"month" json:"month"`
	Days      int       `db:"days" json:"days"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter scopes attendance queries.
type AttendanceFilter struct {
	StudentIDs []string
	Year       int
	Month      string
}

// BulkResult reports the outcome of a multi-record write.
type BulkResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
