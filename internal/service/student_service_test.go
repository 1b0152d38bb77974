package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]models.Student
	lastFilter models.StudentFilter
	listTotal  int
	incomplete int
	backfilled int64
	err        error
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, m.listTotal, nil
}

func (m *mockStudentRepo) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	for _, s := range m.students {
		if s.UserID == userID {
			s := s
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByRoll(ctx context.Context, classID string, roll int, excludeID string) (bool, error) {
	for _, s := range m.students {
		if s.ClassID == classID && s.Roll == roll && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) CountIncomplete(ctx context.Context) (int, error) {
	return m.incomplete, m.err
}

func (m *mockStudentRepo) BackfillDefaults(ctx context.Context) (int64, error) {
	m.backfilled = int64(m.incomplete)
	return m.backfilled, m.err
}

func TestStudentServiceCreateProfile(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := NewStudentService(repo, validator.New(), zap.NewNop())

	student, err := svc.CreateProfile(context.Background(), "user-1", dto.StudentProfileRequest{
		ClassID:  "6",
		Roll:     4,
		FullName: " Rahim Uddin ",
		Age:      12,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated", student.ID)
	assert.Equal(t, "user-1", student.UserID)
	assert.Equal(t, "Rahim Uddin", student.FullName)
	assert.Equal(t, models.DefaultStudentPhone, student.Phone)
	assert.Equal(t, models.DefaultStudentFatherName, student.FatherName)
	assert.Equal(t, models.DefaultStudentSection, student.Section)
}

func TestStudentServiceCreateProfileConflicts(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", UserID: "user-1", ClassID: "6", Roll: 4},
	}}
	svc := NewStudentService(repo, nil, nil)

	_, err := svc.CreateProfile(context.Background(), "user-1", dto.StudentProfileRequest{ClassID: "6", Roll: 9, FullName: "Again"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.CreateProfile(context.Background(), "user-2", dto.StudentProfileRequest{ClassID: "6", Roll: 4, FullName: "Same roll"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.CreateProfile(context.Background(), "user-2", dto.StudentProfileRequest{ClassID: "42", Roll: 1, FullName: "No class"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.CreateProfile(context.Background(), "user-2", dto.StudentProfileRequest{ClassID: "6", FullName: "No roll"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStudentServiceLookups(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", UserID: "user-1", ClassID: "6", Roll: 1},
	}, listTotal: 1}
	svc := NewStudentService(repo, nil, nil)

	me, err := svc.Me(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", me.ID)

	_, err = svc.Me(context.Background(), "user-9")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	roster, err := svc.Roster(context.Background(), "7")
	require.NoError(t, err)
	assert.NotNil(t, roster)
	assert.Empty(t, roster)

	_, err = svc.Roster(context.Background(), "13")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{ClassID: "6"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, "6", repo.lastFilter.ClassID)
}

func TestStudentServiceBackfill(t *testing.T) {
	repo := &mockStudentRepo{incomplete: 3}
	svc := NewStudentService(repo, nil, nil)

	report, err := svc.Backfill(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Incomplete)
	assert.Zero(t, report.Updated)
	assert.Zero(t, repo.backfilled)

	report, err = svc.Backfill(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Updated)
}
