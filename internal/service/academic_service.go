package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

// ExamOverall selects the ranking over every exam.
const ExamOverall = "overall"

type academicStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

type academicMarkRepository interface {
	ListByClassExam(ctx context.Context, classID string, exam models.ExamType) ([]models.ScoreRecord, error)
}

// AcademicService loads rosters and exam boards and runs the rank engine over them.
type AcademicService struct {
	students academicStudentRepository
	marks    academicMarkRepository
	engine   *RankEngine
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewAcademicService constructs an AcademicService. cache may be nil.
func NewAcademicService(students academicStudentRepository, marks academicMarkRepository, engine *RankEngine, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AcademicService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = NewRankEngine(logger, metrics)
	}
	return &AcademicService{students: students, marks: marks, engine: engine, cache: cache, metrics: metrics, logger: logger}
}

// Summary returns the exam summaries and overall rank of a student.
// Students may only read their own summary.
func (s *AcademicService) Summary(ctx context.Context, studentID, actorID string, role models.UserRole) (*models.AcademicSummary, error) {
	student, err := s.resolveStudent(ctx, studentID, actorID, role)
	if err != nil {
		return nil, err
	}

	roster, err := s.students.ListByClass(ctx, student.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	boards, warnings := s.loadBoards(ctx, student.ClassID)
	summaries, overall := s.engine.Summaries(roster, boards, student.ID)

	return &models.AcademicSummary{
		StudentID: student.ID,
		ClassID:   student.ClassID,
		Exams:     summaries,
		Overall:   overall,
		Warnings:  warnings,
	}, nil
}

// ClassRanking returns the board of a class for exam "1", "2", "3" or "overall".
func (s *AcademicService) ClassRanking(ctx context.Context, classID, exam string) (*models.ClassRanking, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	if exam == "" {
		exam = ExamOverall
	}
	if exam != ExamOverall && !models.ExamType(exam).Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam must be 1, 2, 3 or overall")
	}

	roster, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	ranking := &models.ClassRanking{ClassID: classID, Exam: exam, TotalStudents: len(roster)}
	if exam == ExamOverall {
		boards, warnings := s.loadBoards(ctx, classID)
		ranking.Entries = s.engine.OverallBoard(roster, boards)
		ranking.Warnings = warnings
		return ranking, nil
	}

	records, cached, err := s.loadBoard(ctx, classID, models.ExamType(exam))
	ranking.Cached = cached
	if err != nil {
		ranking.Warnings = []string{s.boardWarning(classID, models.ExamType(exam), err)}
	}
	ranking.Entries = s.engine.Board(roster, records)
	return ranking, nil
}

// loadBoards fetches the three exam boards concurrently. A board that fails to
// load is treated as empty and reported as a warning.
func (s *AcademicService) loadBoards(ctx context.Context, classID string) (map[models.ExamType][]models.ScoreRecord, []string) {
	results := make([][]models.ScoreRecord, len(models.ExamTypes))
	var (
		mu       sync.Mutex
		warnings []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, exam := range models.ExamTypes {
		i, exam := i, exam
		g.Go(func() error {
			records, _, err := s.loadBoard(gctx, classID, exam)
			if err != nil {
				warning := s.boardWarning(classID, exam, err)
				mu.Lock()
				warnings = append(warnings, warning)
				mu.Unlock()
				return nil
			}
			results[i] = records
			return nil
		})
	}
	_ = g.Wait()

	boards := make(map[models.ExamType][]models.ScoreRecord, len(models.ExamTypes))
	for i, exam := range models.ExamTypes {
		boards[exam] = results[i]
	}
	return boards, sortedWarnings(warnings)
}

func (s *AcademicService) loadBoard(ctx context.Context, classID string, exam models.ExamType) ([]models.ScoreRecord, bool, error) {
	load := func(ctx context.Context) ([]models.ScoreRecord, error) {
		return s.marks.ListByClassExam(ctx, classID, exam)
	}
	if s.cache == nil {
		records, err := load(ctx)
		return records, false, err
	}
	return s.cache.Boards(ctx, classID, exam, load)
}

func (s *AcademicService) boardWarning(classID string, exam models.ExamType, err error) string {
	s.logger.Warn("exam board unavailable, ranking without it",
		zap.String("class_id", classID),
		zap.String("exam_type", string(exam)),
		zap.Error(err))
	s.metrics.IncBoardFetchFailure(string(exam))
	return fmt.Sprintf("exam %s scores could not be loaded", exam)
}

// resolveStudent loads the profile and enforces that students only see themselves.
// "me" and the caller's own user id resolve to the caller's profile.
func (s *AcademicService) resolveStudent(ctx context.Context, studentID, actorID string, role models.UserRole) (*models.Student, error) {
	return resolveStudentForActor(ctx, s.students, studentID, actorID, role)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

func resolveStudentForActor(ctx context.Context, repo studentFinder, studentID, actorID string, role models.UserRole) (*models.Student, error) {
	var (
		student *models.Student
		err     error
	)
	if studentID == "me" || studentID == "" || studentID == actorID {
		student, err = repo.FindByUserID(ctx, actorID)
	} else {
		student, err = repo.FindByID(ctx, studentID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if role == models.RoleStudent && student.UserID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own records")
	}
	return student, nil
}

func sortedWarnings(warnings []string) []string {
	// exam ids are single digits, so lexical order is exam order
	sort.Strings(warnings)
	return warnings
}
