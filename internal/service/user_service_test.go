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

type mockUserRepo struct {
	users      map[string]*models.User
	lastFilter models.UserFilter
	listErr    error
	revoked    []string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var users []models.User
	for _, u := range m.users {
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	user, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Status = status
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func newUserFixture() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{
		"admin":   {ID: "admin", Role: models.RoleAdmin, Status: models.UserStatusActive},
		"teacher": {ID: "teacher", Role: models.RoleTeacher, Status: models.UserStatusPending},
		"student": {ID: "student", Role: models.RoleStudent, Status: models.UserStatusActive},
	}}
}

func TestUserServiceListPending(t *testing.T) {
	repo := newUserFixture()
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	pending := models.UserStatusPending
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Status: &pending, Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "teacher", users[0].ID)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 5, pagination.PageSize)
}

func TestUserServiceApproveTeacher(t *testing.T) {
	repo := newUserFixture()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.UpdateStatus(context.Background(), "admin", "teacher", dto.UpdateUserStatusRequest{Status: models.UserStatusActive})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusActive, user.Status)
	assert.Empty(t, repo.revoked)
}

func TestUserServiceBlockRevokesSessions(t *testing.T) {
	repo := newUserFixture()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.UpdateStatus(context.Background(), "admin", "student", dto.UpdateUserStatusRequest{Status: models.UserStatusBlocked})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusBlocked, user.Status)
	assert.Equal(t, []string{"student"}, repo.revoked)
}

func TestUserServiceUpdateStatusErrors(t *testing.T) {
	svc := NewUserService(newUserFixture(), nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "admin", "admin", dto.UpdateUserStatusRequest{Status: models.UserStatusBlocked})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UpdateStatus(context.Background(), "admin", "ghost", dto.UpdateUserStatusRequest{Status: models.UserStatusBlocked})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.UpdateStatus(context.Background(), "admin", "student", dto.UpdateUserStatusRequest{Status: "deleted"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
