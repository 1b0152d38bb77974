package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	"github.com/noah-isme/sma-classroom-api/internal/service"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/response"
)

type chatService interface {
	List(ctx context.Context, classID string, actor service.ChatActor, limit int, before *time.Time) (*dto.MessagePage, error)
	Send(ctx context.Context, classID string, actor service.ChatActor, req dto.SendMessageRequest) (*models.ChatMessage, error)
	GetSetting(ctx context.Context, classID string, actor service.ChatActor) (*models.ChatSetting, error)
	SetLock(ctx context.Context, classID string, actor service.ChatActor, req dto.SetLockRequest) (*models.ChatSetting, error)
}

// ChatHandler exposes the class chat endpoints polled by clients.
type ChatHandler struct {
	chat chatService
}

// NewChatHandler constructs ChatHandler.
func NewChatHandler(chat chatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// List godoc
// @Summary Page of class messages, newest first
// @Tags Chat
// @Produce json
// @Param classId path string true "Class"
// @Param limit query int false "Page size, at most 100"
// @Param before query string false "RFC3339 timestamp; only older messages are returned"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/messages [get]
func (h *ChatHandler) List(c *gin.Context) {
	actor, ok := chatActor(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive number"))
			return
		}
		limit = parsed
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "before must be an RFC3339 timestamp"))
			return
		}
		before = &ts
	}

	page, err := h.chat.List(c.Request.Context(), c.Param("classId"), actor, limit, before)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page, nil)
}

// Send godoc
// @Summary Post a message
// @Description Students get 423 while the class chat is locked
// @Tags Chat
// @Accept json
// @Produce json
// @Param classId path string true "Class"
// @Param payload body dto.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /classes/{classId}/messages [post]
func (h *ChatHandler) Send(c *gin.Context) {
	actor, ok := chatActor(c)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), c.Param("classId"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Settings returns the lock state of a class.
func (h *ChatHandler) Settings(c *gin.Context) {
	actor, ok := chatActor(c)
	if !ok {
		return
	}
	setting, err := h.chat.GetSetting(c.Request.Context(), c.Param("classId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, setting, nil)
}

// SetLock godoc
// @Summary Lock or unlock the class chat
// @Description Pass the settingId from an earlier read to update it in place
// @Tags Chat
// @Accept json
// @Produce json
// @Param classId path string true "Class"
// @Param payload body dto.SetLockRequest true "Lock"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /classes/{classId}/chat-settings [put]
func (h *ChatHandler) SetLock(c *gin.Context) {
	actor, ok := chatActor(c)
	if !ok {
		return
	}

	var req dto.SetLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lock payload"))
		return
	}

	setting, err := h.chat.SetLock(c.Request.Context(), c.Param("classId"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, setting, nil)
}

func chatActor(c *gin.Context) (service.ChatActor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.ChatActor{}, false
	}
	return service.ChatActor{UserID: claims.UserID, Name: claims.FullName, Role: claims.Role}, true
}
