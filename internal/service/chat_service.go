package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

const defaultChatPageSize = 100

type messageRepository interface {
	List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error)
	Create(ctx context.Context, msg *models.ChatMessage) error
}

type chatSettingRepository interface {
	FindByClass(ctx context.Context, classID string) (*models.ChatSetting, error)
	FindByID(ctx context.Context, id string) (*models.ChatSetting, error)
	Create(ctx context.Context, setting *models.ChatSetting) error
	UpdateLock(ctx context.Context, id string, locked bool, updatedBy string) error
}

// ChatActor identifies who is reading or writing a class chat.
type ChatActor struct {
	UserID string
	Name   string
	Role   models.UserRole
}

func (a ChatActor) moderator() bool {
	return a.Role == models.RoleTeacher || a.Role == models.RoleAdmin
}

// ChatConfig bounds message pages.
type ChatConfig struct {
	PageSize    int
	MaxPageSize int
}

// ChatService serves class chat messages and the per-class lock.
type ChatService struct {
	messages  messageRepository
	settings  chatSettingRepository
	students  studentFinder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ChatConfig
}

// NewChatService constructs the chat service.
func NewChatService(messages messageRepository, settings chatSettingRepository, students studentFinder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ChatConfig) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultChatPageSize
	}
	if cfg.PageSize <= 0 || cfg.PageSize > cfg.MaxPageSize {
		cfg.PageSize = cfg.MaxPageSize
	}
	return &ChatService{messages: messages, settings: settings, students: students, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// List returns up to limit messages of a class, newest first, created strictly before before when set.
func (s *ChatService) List(ctx context.Context, classID string, actor ChatActor, limit int, before *time.Time) (*dto.MessagePage, error) {
	if err := s.authorizeClass(ctx, classID, actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	messages, err := s.messages.List(ctx, models.MessageQuery{ClassID: classID, Limit: limit, Before: before})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return &dto.MessagePage{Messages: messages, Limit: limit}, nil
}

// Send stores a message. Students are refused while the class chat is locked.
func (s *ChatService) Send(ctx context.Context, classID string, actor ChatActor, req dto.SendMessageRequest) (*models.ChatMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	text := strings.TrimSpace(req.Text)
	hasAttachment := req.AttachmentRef != nil && *req.AttachmentRef != ""
	if text == "" && !hasAttachment {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message needs text or an attachment")
	}
	if err := s.authorizeClass(ctx, classID, actor); err != nil {
		return nil, err
	}

	if !actor.moderator() {
		setting, err := s.loadSetting(ctx, classID)
		if err != nil {
			return nil, err
		}
		if setting.Locked {
			s.metrics.IncChatLocked()
			return nil, appErrors.Clone(appErrors.ErrChatLocked, "")
		}
	}

	msg := &models.ChatMessage{
		ClassID:    classID,
		SenderID:   actor.UserID,
		SenderName: actor.Name,
		Role:       actor.Role,
		Text:       text,
	}
	if hasAttachment {
		kind := models.AttachmentFile
		if req.AttachmentKind != nil {
			kind = *req.AttachmentKind
		}
		msg.AttachmentRef = req.AttachmentRef
		msg.AttachmentKind = &kind
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	s.metrics.IncChatSent()
	return msg, nil
}

// GetSetting returns the class lock, or an unlocked default when none was ever stored.
func (s *ChatService) GetSetting(ctx context.Context, classID string, actor ChatActor) (*models.ChatSetting, error) {
	if err := s.authorizeClass(ctx, classID, actor); err != nil {
		return nil, err
	}
	return s.loadSetting(ctx, classID)
}

func (s *ChatService) loadSetting(ctx context.Context, classID string) (*models.ChatSetting, error) {
	setting, err := s.settings.FindByClass(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ChatSetting{ClassID: classID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat setting")
	}
	return setting, nil
}

// SetLock writes the class lock through the given setting id, or through the class's
// existing setting, creating one when there is none. The last writer wins.
func (s *ChatService) SetLock(ctx context.Context, classID string, actor ChatActor, req dto.SetLockRequest) (*models.ChatSetting, error) {
	if !actor.moderator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can lock the chat")
	}
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}

	var (
		setting *models.ChatSetting
		err     error
	)
	if req.SettingID != "" {
		setting, err = s.settings.FindByID(ctx, req.SettingID)
		if err == nil && setting.ClassID != classID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "setting belongs to another class")
		}
	} else {
		setting, err = s.settings.FindByClass(ctx, classID)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat setting")
	}
	if errors.Is(err, sql.ErrNoRows) && req.SettingID != "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "chat setting not found")
	}

	updatedBy := actor.UserID
	if setting == nil {
		setting = &models.ChatSetting{ClassID: classID, Locked: req.Locked, UpdatedBy: &updatedBy}
		if err := s.settings.Create(ctx, setting); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create chat setting")
		}
	} else {
		if err := s.settings.UpdateLock(ctx, setting.ID, req.Locked, updatedBy); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update chat setting")
		}
		setting.Locked = req.Locked
		setting.UpdatedBy = &updatedBy
		setting.UpdatedAt = time.Now().UTC()
	}

	s.logger.Info("chat lock changed",
		zap.String("class_id", classID),
		zap.Bool("locked", req.Locked),
		zap.String("actor_id", actor.UserID))
	return setting, nil
}

// authorizeClass keeps students inside their own class chat.
func (s *ChatService) authorizeClass(ctx context.Context, classID string, actor ChatActor) error {
	if classID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	if actor.Role != models.RoleStudent {
		return nil
	}
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "complete your student profile to join the class chat")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID != classID {
		return appErrors.Clone(appErrors.ErrForbidden, "students may only use their own class chat")
	}
	return nil
}
