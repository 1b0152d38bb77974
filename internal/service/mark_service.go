package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type markRepository interface {
	List(ctx context.Context, filter models.MarkFilter) ([]models.ScoreRecord, error)
	FindByKey(ctx context.Context, studentIDs []string, subject string, exam models.ExamType) (*models.ScoreRecord, error)
	Create(ctx context.Context, record *models.ScoreRecord) error
	UpdateScore(ctx context.Context, id string, score, maxScore float64) error
}

type markStudentRepository interface {
	studentFinder
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

// MarkService handles score entry and lookup.
type MarkService struct {
	marks     markRepository
	students  markStudentRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMarkService constructs the mark service. cache and metrics may be nil.
func NewMarkService(marks markRepository, students markStudentRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *MarkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkService{marks: marks, students: students, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// ListForStudent returns a student's score records, optionally for one exam.
// Records filed under either the profile id or the user id are both returned.
func (s *MarkService) ListForStudent(ctx context.Context, studentID, actorID string, role models.UserRole, exam string) ([]models.ScoreRecord, error) {
	student, err := resolveStudentForActor(ctx, s.students, studentID, actorID, role)
	if err != nil {
		return nil, err
	}

	filter := models.MarkFilter{StudentIDs: []string{student.ID}}
	if student.UserID != "" && student.UserID != student.ID {
		filter.StudentIDs = append(filter.StudentIDs, student.UserID)
	}
	if exam != "" {
		examType := models.ExamType(exam)
		if !examType.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "exam must be 1, 2 or 3")
		}
		filter.ExamType = &examType
	}

	records, err := s.marks.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	return records, nil
}

// BulkUpsert writes one score per entry, updating an existing record for the same
// student, subject and exam in place and creating one otherwise. Entries are written
// concurrently and independently; a partial failure keeps the writes that landed.
func (s *MarkService) BulkUpsert(ctx context.Context, actorID string, req dto.BulkMarksRequest) (*models.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marks payload")
	}
	if !models.KnownClass(req.ClassID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown class")
	}
	subjects := make(map[string]bool)
	for _, subject := range models.SubjectsForClass(req.ClassID) {
		subjects[subject] = true
	}
	for _, entry := range req.Entries {
		if !subjects[entry.Subject] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %q is not taught in class %s", entry.Subject, req.ClassID))
		}
		if entry.Score > entry.MaxScore {
			return nil, appErrors.Clone(appErrors.ErrValidation, "score cannot exceed maxScore")
		}
	}

	roster, err := s.students.ListByClass(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	writes := collapseMarkEntries(roster, req.Entries)

	result, errs := runBulk(ctx, len(writes), func(ctx context.Context, i int) (writeOutcome, error) {
		w := writes[i]
		if w.student == nil {
			return 0, fmt.Errorf("student %s: not enrolled in class %s", w.entry.StudentID, req.ClassID)
		}
		return s.upsert(ctx, req.ClassID, req.ExamType, w.student, w.entry)
	})

	s.metrics.ObserveBulkWrite("marks", result)
	if result.Created+result.Updated > 0 && s.cache != nil {
		_ = s.cache.InvalidateClass(ctx, req.ClassID)
	}
	if errs != nil {
		s.logger.Warn("bulk marks partially failed",
			zap.String("class_id", req.ClassID),
			zap.String("exam_type", string(req.ExamType)),
			zap.String("actor_id", actorID),
			zap.Int("failed", result.Failed),
			zap.Error(errs))
		return &result, partialFailure("mark", len(writes), result, errs)
	}
	return &result, nil
}

// markWrite is one entry resolved against the class roster. student is nil when
// the entry names nobody enrolled in the class.
type markWrite struct {
	student *models.Student
	entry   dto.MarkEntry
}

// collapseMarkEntries resolves every entry to its roster member, whether it names
// the profile id or the user id, and keeps only the last entry per student and
// subject so that no two writes in a request target the same record.
func collapseMarkEntries(roster []models.Student, entries []dto.MarkEntry) []markWrite {
	byID := make(map[string]*models.Student, len(roster)*2)
	for i := range roster {
		byID[roster[i].ID] = &roster[i]
		if roster[i].UserID != "" {
			byID[roster[i].UserID] = &roster[i]
		}
	}

	writes := make([]markWrite, 0, len(entries))
	slot := make(map[string]int, len(entries))
	for _, entry := range entries {
		student := byID[entry.StudentID]
		if student == nil {
			writes = append(writes, markWrite{entry: entry})
			continue
		}
		key := student.ID + "\x00" + entry.Subject
		if i, ok := slot[key]; ok {
			writes[i].entry = entry
			continue
		}
		slot[key] = len(writes)
		writes = append(writes, markWrite{student: student, entry: entry})
	}
	return writes
}

func (s *MarkService) upsert(ctx context.Context, classID string, exam models.ExamType, student *models.Student, entry dto.MarkEntry) (writeOutcome, error) {
	ids := []string{student.ID}
	if student.UserID != "" && student.UserID != student.ID {
		ids = append(ids, student.UserID)
	}
	existing, err := s.marks.FindByKey(ctx, ids, entry.Subject, exam)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("student %s %s: %w", entry.StudentID, entry.Subject, err)
	}
	if existing != nil {
		if err := s.marks.UpdateScore(ctx, existing.ID, entry.Score, entry.MaxScore); err != nil {
			return 0, fmt.Errorf("student %s %s: %w", entry.StudentID, entry.Subject, err)
		}
		return outcomeUpdated, nil
	}

	record := &models.ScoreRecord{
		StudentID: student.ID,
		Subject:   entry.Subject,
		ExamType:  exam,
		Score:     entry.Score,
		MaxScore:  entry.MaxScore,
		ClassID:   classID,
	}
	if err := s.marks.Create(ctx, record); err != nil {
		return 0, fmt.Errorf("student %s %s: %w", entry.StudentID, entry.Subject, err)
	}
	return outcomeCreated, nil
}
