package models

import "strconv"

// NoRank is the rank reported when the student cannot be placed.
const NoRank = 0

// ExamSummary describes one student's standing in one exam.
type ExamSummary struct {
	ExamType      ExamType `json:"exam_type"`
	Total         float64  `json:"total"`
	MaxTotal      float64  `json:"max_total"`
	Percentage    *int     `json:"percentage"`
	Rank          int      `json:"rank"`
	TotalStudents int      `json:"total_students"`
	HasData       bool     `json:"has_data"`
}

// DisplayRank renders the rank, or "-" when there is none.
func (s ExamSummary) DisplayRank() string {
	return displayRank(s.Rank)
}

// DisplayPercentage renders the percentage, or "Pending" when there is no data.
func (s ExamSummary) DisplayPercentage() string {
	if s.Percentage == nil {
		return "Pending"
	}
	return strconv.Itoa(*s.Percentage) + "%"
}

// OverallRank is the standing computed over every exam together.
type OverallRank struct {
	Rank          int     `json:"rank"`
	TotalStudents int     `json:"total_students"`
	Total         float64 `json:"total"`
}

// DisplayRank renders the rank, or "-" when there is none.
func (o OverallRank) DisplayRank() string {
	return displayRank(o.Rank)
}

// RankEntry is one row of a class board.
type RankEntry struct {
	StudentID string  `json:"student_id"`
	UserID    string  `json:"user_id"`
	FullName  string  `json:"full_name"`
	Roll      int     `json:"roll"`
	Total     float64 `json:"total"`
	Rank      int     `json:"rank"`
	HasData   bool    `json:"has_data"`
}

// ClassRanking is the full board for a class and exam ("overall" for all exams).
type ClassRanking struct {
	ClassID       string      `json:"class_id"`
	Exam          string      `json:"exam"`
	TotalStudents int         `json:"total_students"`
	Entries       []RankEntry `json:"entries"`
	Warnings      []string    `json:"warnings,omitempty"`
	// Cached is set when a single-exam board came from the cache.
	Cached bool `json:"-"`
}

// AcademicSummary is what a student dashboard shows.
type AcademicSummary struct {
	StudentID string        `json:"student_id"`
	ClassID   string        `json:"class_id"`
	Exams     []ExamSummary `json:"exams"`
	Overall   OverallRank   `json:"overall"`
	Warnings  []string      `json:"warnings,omitempty"`
}

func displayRank(rank int) string {
	if rank == NoRank {
		return "-"
	}
	return strconv.Itoa(rank)
}
