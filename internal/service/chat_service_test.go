package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type memoryMessageRepo struct {
	mu        sync.Mutex
	messages  []models.ChatMessage
	createErr error
	lastQuery models.MessageQuery
	clock     time.Time
}

func (m *memoryMessageRepo) List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.ClassID != q.ClassID {
			continue
		}
		if q.Before != nil && !msg.CreatedAt.Before(*q.Before) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memoryMessageRepo) Create(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.clock = m.clock.Add(time.Second)
	msg.ID = "m" + strconv.Itoa(len(m.messages)+1)
	msg.CreatedAt = m.clock
	m.messages = append(m.messages, *msg)
	return nil
}

type memorySettingRepo struct {
	mu       sync.Mutex
	settings []models.ChatSetting
	creates  int
	updates  int
}

func (m *memorySettingRepo) FindByClass(ctx context.Context, classID string) (*models.ChatSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.settings {
		if s.ClassID == classID {
			cp := s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memorySettingRepo) FindByID(ctx context.Context, id string) (*models.ChatSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.settings {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memorySettingRepo) Create(ctx context.Context, setting *models.ChatSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	setting.ID = "setting-" + strconv.Itoa(m.creates)
	m.settings = append(m.settings, *setting)
	return nil
}

func (m *memorySettingRepo) UpdateLock(ctx context.Context, id string, locked bool, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.settings {
		if m.settings[i].ID == id {
			m.updates++
			m.settings[i].Locked = locked
			m.settings[i].UpdatedBy = &updatedBy
			return nil
		}
	}
	return sql.ErrNoRows
}

var (
	teacherActor = ChatActor{UserID: "teacher-1", Name: "Ms. Rahman", Role: models.RoleTeacher}
	studentActor = ChatActor{UserID: "user-S1", Name: "Student S1", Role: models.RoleStudent}
)

func newTestChatService(messages *memoryMessageRepo, settings *memorySettingRepo, metrics *MetricsService) *ChatService {
	return NewChatService(messages, settings, classSix(), metrics, nil, nil, ChatConfig{PageSize: 100, MaxPageSize: 100})
}

func TestChatServiceListCapsLimitAndPagesBackwards(t *testing.T) {
	messages := &memoryMessageRepo{clock: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	svc := newTestChatService(messages, &memorySettingRepo{}, nil)
	for i := 0; i < 5; i++ {
		_, err := svc.Send(context.Background(), "6", teacherActor, dto.SendMessageRequest{Text: "hello " + strconv.Itoa(i)})
		require.NoError(t, err)
	}

	page, err := svc.List(context.Background(), "6", studentActor, 500, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 100, messages.lastQuery.Limit)
	require.Len(t, page.Messages, 5)
	assert.Equal(t, "m5", page.Messages[0].ID)

	before := page.Messages[2].CreatedAt
	older, err := svc.List(context.Background(), "6", studentActor, 0, &before)
	require.NoError(t, err)
	require.Len(t, older.Messages, 2)
	assert.Equal(t, "m2", older.Messages[0].ID)
	assert.Equal(t, "m1", older.Messages[1].ID)
}

func TestChatServiceStudentsStayInTheirClass(t *testing.T) {
	svc := newTestChatService(&memoryMessageRepo{}, &memorySettingRepo{}, nil)

	_, err := svc.List(context.Background(), "7", studentActor, 10, nil)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.List(context.Background(), "7", ChatActor{UserID: "nobody", Role: models.RoleStudent}, 10, nil)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.List(context.Background(), "7", teacherActor, 10, nil)
	assert.NoError(t, err)
}

func TestChatServiceSendRespectsLock(t *testing.T) {
	messages := &memoryMessageRepo{}
	settings := &memorySettingRepo{}
	metrics := NewMetricsService()
	svc := newTestChatService(messages, settings, metrics)

	_, err := svc.SetLock(context.Background(), "6", teacherActor, dto.SetLockRequest{Locked: true})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), "6", studentActor, dto.SendMessageRequest{Text: "can I talk?"})
	assert.ErrorIs(t, err, appErrors.ErrChatLocked)
	assert.Empty(t, messages.messages)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.chatLocked))

	msg, err := svc.Send(context.Background(), "6", teacherActor, dto.SendMessageRequest{Text: "  quiet please  "})
	require.NoError(t, err)
	assert.Equal(t, "quiet please", msg.Text)
	assert.Equal(t, models.RoleTeacher, msg.Role)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.chatSent))
}

func TestChatServiceSendValidation(t *testing.T) {
	svc := newTestChatService(&memoryMessageRepo{}, &memorySettingRepo{}, nil)

	_, err := svc.Send(context.Background(), "6", studentActor, dto.SendMessageRequest{Text: "   "})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	ref := "attachments/abc.pdf"
	msg, err := svc.Send(context.Background(), "6", studentActor, dto.SendMessageRequest{AttachmentRef: &ref})
	require.NoError(t, err)
	require.NotNil(t, msg.AttachmentKind)
	assert.Equal(t, models.AttachmentFile, *msg.AttachmentKind)
}

func TestChatServiceSendSurfacesWriteFailure(t *testing.T) {
	svc := newTestChatService(&memoryMessageRepo{createErr: errors.New("disk full")}, &memorySettingRepo{}, nil)
	_, err := svc.Send(context.Background(), "6", teacherActor, dto.SendMessageRequest{Text: "hi"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestChatServiceSetLockUpsertsSingleSetting(t *testing.T) {
	settings := &memorySettingRepo{}
	svc := newTestChatService(&memoryMessageRepo{}, settings, nil)

	current, err := svc.GetSetting(context.Background(), "6", studentActor)
	require.NoError(t, err)
	assert.False(t, current.Locked)
	assert.Empty(t, current.ID)

	created, err := svc.SetLock(context.Background(), "6", teacherActor, dto.SetLockRequest{Locked: true})
	require.NoError(t, err)
	assert.Equal(t, "setting-1", created.ID)

	updated, err := svc.SetLock(context.Background(), "6", teacherActor, dto.SetLockRequest{SettingID: created.ID, Locked: false})
	require.NoError(t, err)
	assert.False(t, updated.Locked)

	_, err = svc.SetLock(context.Background(), "6", teacherActor, dto.SetLockRequest{Locked: true})
	require.NoError(t, err)
	assert.Equal(t, 1, settings.creates)
	assert.Equal(t, 2, settings.updates)

	_, err = svc.SetLock(context.Background(), "6", teacherActor, dto.SetLockRequest{SettingID: "missing", Locked: true})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.SetLock(context.Background(), "7", teacherActor, dto.SetLockRequest{SettingID: created.ID, Locked: true})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.SetLock(context.Background(), "6", studentActor, dto.SetLockRequest{Locked: false})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
