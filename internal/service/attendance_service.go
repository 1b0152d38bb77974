package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, error)
	FindByMonth(ctx context.Context, studentID string, year int, month string) (*models.Attendance, error)
	Create(ctx context.Context, row *models.Attendance) error
	UpdateDays(ctx context.Context, id, teacherID string, days int) error
}

// AttendanceService coordinates monthly attendance entry and lookup.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentFinder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students studentFinder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, students: students, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// ListYear returns a student's attendance for a year in calendar order. Year 0 means the current year.
func (s *AttendanceService) ListYear(ctx context.Context, studentID, actorID string, role models.UserRole, year int) (*dto.AttendanceYearResponse, error) {
	student, err := resolveStudentForActor(ctx, s.students, studentID, actorID, role)
	if err != nil {
		return nil, err
	}
	if year == 0 {
		year = s.now().Year()
	}

	ids := []string{student.ID}
	if student.UserID != "" && student.UserID != student.ID {
		ids = append(ids, student.UserID)
	}
	rows, err := s.repo.List(ctx, models.AttendanceFilter{StudentIDs: ids, Year: year})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	order := make(map[string]int, len(models.Months))
	for i, m := range models.Months {
		order[m] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return order[rows[i].Month] < order[rows[j].Month]
	})

	resp := &dto.AttendanceYearResponse{StudentID: student.ID, Year: year, Months: rows}
	for _, row := range rows {
		resp.TotalDays += row.Days
	}
	if resp.Months == nil {
		resp.Months = []models.Attendance{}
	}
	return resp, nil
}

// BulkUpsert records day counts for one month, one concurrent write per student.
func (s *AttendanceService) BulkUpsert(ctx context.Context, teacherID string, req dto.BulkAttendanceRequest) (*models.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !models.ValidMonth(req.Month) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be one of Jan..Dec")
	}

	result, errs := runBulk(ctx, len(req.Entries), func(ctx context.Context, i int) (writeOutcome, error) {
		entry := req.Entries[i]
		existing, err := s.repo.FindByMonth(ctx, entry.StudentID, req.Year, req.Month)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("student %s: %w", entry.StudentID, err)
		}
		if existing != nil {
			if err := s.repo.UpdateDays(ctx, existing.ID, teacherID, entry.Days); err != nil {
				return 0, fmt.Errorf("student %s: %w", entry.StudentID, err)
			}
			return outcomeUpdated, nil
		}
		row := &models.Attendance{StudentID: entry.StudentID, TeacherID: teacherID, Year: req.Year, Month: req.Month, Days: entry.Days}
		if err := s.repo.Create(ctx, row); err != nil {
			return 0, fmt.Errorf("student %s: %w", entry.StudentID, err)
		}
		return outcomeCreated, nil
	})

	s.metrics.ObserveBulkWrite("attendance", result)
	if errs != nil {
		s.logger.Warn("bulk attendance partially failed",
			zap.String("teacher_id", teacherID),
			zap.Int("year", req.Year),
			zap.String("month", req.Month),
			zap.Int("failed", result.Failed),
			zap.Error(errs))
		return &result, partialFailure("attendance", len(req.Entries), result, errs)
	}
	return &result, nil
}
