package dto

import "github.com/noah-isme/sma-classroom-api/internal/models"

// MarkEntry is one score in a bulk marks request.
type MarkEntry struct {
	StudentID string  `json:"studentId" validate:"required"`
	Subject   string  `json:"subject" validate:"required"`
	Score     float64 `json:"score" validate:"gte=0"`
	MaxScore  float64 `json:"maxScore" validate:"gt=0"`
}

// BulkMarksRequest captures POST /marks/bulk payload.
type BulkMarksRequest struct {
	ClassID  string          `json:"classId" validate:"required"`
	ExamType models.ExamType `json:"examType" validate:"required,oneof=1 2 3"`
	Entries  []MarkEntry     `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceEntry is one month count in a bulk attendance request.
type AttendanceEntry struct {
	StudentID string `json:"studentId" validate:"required"`
	Days      int    `json:"days" validate:"gte=0,lte=31"`
}

// BulkAttendanceRequest captures POST /attendance/bulk payload.
type BulkAttendanceRequest struct {
	Year    int               `json:"year" validate:"required,gte=2000,lte=2100"`
	Month   string            `json:"month" validate:"required"`
	Entries []AttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceYearResponse lists a student's months for one year in calendar order.
type AttendanceYearResponse struct {
	StudentID string              `json:"studentId"`
	Year      int                 `json:"year"`
	Months    []models.Attendance `json:"months"`
	TotalDays int                 `json:"totalDays"`
}

// RankingExport is a rendered rank sheet.
type RankingExport struct {
	FileName    string
	ContentType string
	Payload     []byte
}
