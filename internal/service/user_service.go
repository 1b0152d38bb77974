package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// UserService handles account administration.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns users with pagination, e.g. pending teachers waiting for approval.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStatus approves, blocks or re-pends an account. Leaving the active state
// revokes every refresh session of the account.
func (s *UserService) UpdateStatus(ctx context.Context, actorID, id string, req dto.UpdateUserStatusRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if actorID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change your own status")
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user status")
	}
	if req.Status != models.UserStatusActive {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke sessions", zap.String("user_id", id), zap.Error(err))
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	s.logger.Info("user status changed",
		zap.String("user_id", id),
		zap.String("status", string(req.Status)),
		zap.String("actor_id", actorID))
	return user, nil
}
