package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	"github.com/noah-isme/sma-classroom-api/internal/service"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type fakeChatService struct {
	locked     bool
	lastActor  service.ChatActor
	lastLimit  int
	lastBefore *time.Time
	lastLock   dto.SetLockRequest
}

func (f *fakeChatService) List(_ context.Context, classID string, actor service.ChatActor, limit int, before *time.Time) (*dto.MessagePage, error) {
	f.lastActor, f.lastLimit, f.lastBefore = actor, limit, before
	return &dto.MessagePage{Messages: []models.ChatMessage{{ID: "m1", ClassID: classID}}, Limit: 100}, nil
}

func (f *fakeChatService) Send(_ context.Context, classID string, actor service.ChatActor, req dto.SendMessageRequest) (*models.ChatMessage, error) {
	f.lastActor = actor
	if f.locked && actor.Role == models.RoleStudent {
		return nil, appErrors.ErrChatLocked
	}
	return &models.ChatMessage{ID: "m2", ClassID: classID, Text: req.Text, SenderID: actor.UserID}, nil
}

func (f *fakeChatService) GetSetting(_ context.Context, classID string, _ service.ChatActor) (*models.ChatSetting, error) {
	return &models.ChatSetting{ClassID: classID, Locked: f.locked}, nil
}

func (f *fakeChatService) SetLock(_ context.Context, classID string, actor service.ChatActor, req dto.SetLockRequest) (*models.ChatSetting, error) {
	f.lastLock = req
	f.locked = req.Locked
	return &models.ChatSetting{ID: "setting-1", ClassID: classID, Locked: req.Locked}, nil
}

func TestChatHandlerListParsesPaging(t *testing.T) {
	svc := &fakeChatService{}
	h := NewChatHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/classes/6/messages?limit=2&before=2024-03-01T08:04:00.5Z", nil, studentClaims)
	c.Params = gin.Params{{Key: "classId", Value: "6"}}
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var page dto.MessagePage
	decodeEnvelope(t, rec, &page)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.Equal(t, 2, svc.lastLimit)
	require.NotNil(t, svc.lastBefore)
	assert.Equal(t, 500*time.Millisecond, time.Duration(svc.lastBefore.Nanosecond()))
	assert.Equal(t, "Student S1", svc.lastActor.Name)
}

func TestChatHandlerListRejectsBadQuery(t *testing.T) {
	h := NewChatHandler(&fakeChatService{})

	c, rec := newTestContext(http.MethodGet, "/classes/6/messages?before=yesterday", nil, studentClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/classes/6/messages?limit=-1", nil, studentClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/classes/6/messages", nil, nil)
	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatHandlerSendLocked(t *testing.T) {
	svc := &fakeChatService{locked: true}
	h := NewChatHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/classes/6/messages", dto.SendMessageRequest{Text: "hi"}, studentClaims)
	c.Params = gin.Params{{Key: "classId", Value: "6"}}
	h.Send(c)
	assert.Equal(t, http.StatusLocked, rec.Code)
	env := decodeEnvelope(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CHAT_LOCKED", env.Error.Code)

	c, rec = newTestContext(http.MethodPost, "/classes/6/messages", dto.SendMessageRequest{Text: "hi"}, teacherClaims)
	c.Params = gin.Params{{Key: "classId", Value: "6"}}
	h.Send(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestChatHandlerSetLock(t *testing.T) {
	svc := &fakeChatService{}
	h := NewChatHandler(svc)

	c, rec := newTestContext(http.MethodPut, "/classes/6/chat-settings", dto.SetLockRequest{SettingID: "setting-1", Locked: true}, teacherClaims)
	c.Params = gin.Params{{Key: "classId", Value: "6"}}
	h.SetLock(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "setting-1", svc.lastLock.SettingID)

	c, rec = newTestContext(http.MethodGet, "/classes/6/chat-settings", nil, studentClaims)
	c.Params = gin.Params{{Key: "classId", Value: "6"}}
	h.Settings(c)
	var setting models.ChatSetting
	decodeEnvelope(t, rec, &setting)
	assert.True(t, setting.Locked)
}
