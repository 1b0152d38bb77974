package models

import "time"

// ExamType identifies one of the three term exams.
type ExamType string

const (
	ExamFirst  ExamType = "1"
	ExamSecond ExamType = "2"
	ExamThird  ExamType = "3"
)

// ExamTypes lists the exams in display order.
var ExamTypes = []ExamType{ExamFirst, ExamSecond, ExamThird}

// Valid reports whether the exam type is one of the known exams.
func (e ExamType) Valid() bool {
	switch e {
	case ExamFirst, ExamSecond, ExamThird:
		return true
	default:
		return false
	}
}

// ScoreRecord is one subject score for one student in one exam.
// StudentID may carry either the profile id or the user id of the student;
// older rows were written with the latter.
type ScoreRecord struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Subject   string    `db:"subject" json:"subject"`
	ExamType  ExamType  `db:"exam_type" json:"exam_type"`
	Score     float64   `db:"score" json:"score"`
	MaxScore  float64   `db:"max_score" json:"max_score"`
	ClassID   string    `db:"class_id" json:"class_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MarkFilter scopes score record queries.
type MarkFilter struct {
	ClassID    string
	StudentIDs []string
	ExamType   *ExamType
	Subject    string
}
