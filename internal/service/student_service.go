package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ExistsByRoll(ctx context.Context, classID string, roll int, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	CountIncomplete(ctx context.Context) (int, error)
	BackfillDefaults(ctx context.Context) (int64, error)
}

// BackfillReport summarises a profile backfill run.
type BackfillReport struct {
	Incomplete int   `json:"incomplete"`
	Updated    int64 `json:"updated"`
	DryRun     bool  `json:"dry_run"`
}

// StudentService handles student profiles and class rosters.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Roster returns a class ordered by roll.
func (s *StudentService) Roster(ctx context.Context, classID string) ([]models.Student, error) {
	if !models.KnownClass(classID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	students, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// Get returns a profile by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Me returns the caller's own profile.
func (s *StudentService) Me(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not created yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// CreateProfile stores the profile of a freshly registered student. One profile per account,
// one roll number per class.
func (s *StudentService) CreateProfile(ctx context.Context, userID string, req dto.StudentProfileRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student profile")
	}
	if !models.KnownClass(req.ClassID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown class")
	}

	if _, err := s.repo.FindByUserID(ctx, userID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "profile already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check profile")
	}

	taken, err := s.repo.ExistsByRoll(ctx, req.ClassID, req.Roll, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roll")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "roll already used in this class")
	}

	student := &models.Student{
		UserID:     userID,
		ClassID:    req.ClassID,
		Roll:       req.Roll,
		FullName:   strings.TrimSpace(req.FullName),
		Phone:      orDefault(req.Phone, models.DefaultStudentPhone),
		Age:        req.Age,
		FatherName: orDefault(req.FatherName, models.DefaultStudentFatherName),
		Address:    req.Address,
		Section:    orDefault(req.Section, models.DefaultStudentSection),
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student profile created", zap.String("student_id", student.ID), zap.String("class_id", student.ClassID))
	return student, nil
}

// Backfill fills missing profile fields with defaults. A dry run only counts.
func (s *StudentService) Backfill(ctx context.Context, dryRun bool) (*BackfillReport, error) {
	incomplete, err := s.repo.CountIncomplete(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count incomplete profiles")
	}
	report := &BackfillReport{Incomplete: incomplete, DryRun: dryRun}
	if dryRun || incomplete == 0 {
		return report, nil
	}
	updated, err := s.repo.BackfillDefaults(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to backfill profiles")
	}
	report.Updated = updated
	s.logger.Info("student profiles backfilled", zap.Int("incomplete", incomplete), zap.Int64("updated", updated))
	return report, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
