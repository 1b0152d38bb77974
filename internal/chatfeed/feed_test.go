package chatfeed

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

var baseTime = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeMessageStore struct {
	mu        sync.Mutex
	messages  []models.ChatMessage
	listCalls int
	creates   int
	listErr   error
	createErr error
	befores   []*time.Time
	// gate, when set, blocks List until it is closed.
	gate chan struct{}
}

func (s *fakeMessageStore) List(ctx context.Context, classID string, limit int, before *time.Time) ([]models.ChatMessage, error) {
	s.mu.Lock()
	s.listCalls++
	s.befores = append(s.befores, before)
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.ChatMessage
	for _, msg := range s.messages {
		if msg.ClassID != classID {
			continue
		}
		if before != nil && !msg.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeMessageStore) Create(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
	msg.ID = "srv-" + strconv.Itoa(s.creates)
	msg.CreatedAt = baseTime.Add(time.Hour)
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *fakeMessageStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls + s.creates
}

type fakeSettingStore struct {
	mu        sync.Mutex
	setting   *models.ChatSetting
	creates   int
	updates   []string
	writeErr  error
	findErr   error
	findCalls int
}

func (s *fakeSettingStore) FindByClass(ctx context.Context, classID string) (*models.ChatSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.setting == nil {
		return nil, nil
	}
	copy := *s.setting
	return &copy, nil
}

func (s *fakeSettingStore) Create(ctx context.Context, classID string, locked bool) (*models.ChatSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.setting = &models.ChatSetting{ID: "setting-1", ClassID: classID, Locked: locked}
	copy := *s.setting
	return &copy, nil
}

func (s *fakeSettingStore) Update(ctx context.Context, id, classID string, locked bool) (*models.ChatSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, id)
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.setting = &models.ChatSetting{ID: id, ClassID: classID, Locked: locked}
	copy := *s.setting
	return &copy, nil
}

type fakeUploader struct {
	err   error
	names []string
}

func (u *fakeUploader) Upload(ctx context.Context, fileName string, r io.Reader) (*models.Attachment, error) {
	u.names = append(u.names, fileName)
	if u.err != nil {
		return nil, u.err
	}
	return &models.Attachment{Ref: "ref-1.png", Kind: models.AttachmentImage}, nil
}

func seedMessages(n int) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.ChatMessage{
			ID:        "m" + strconv.Itoa(i),
			ClassID:   "6",
			SenderID:  "user-S1",
			Text:      "hello",
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

var (
	studentSession = Session{UserID: "user-S1", Name: "Student S1", Role: models.RoleStudent, ClassID: "6"}
	teacherSession = Session{UserID: "teacher-1", Name: "Teacher", Role: models.RoleTeacher, ClassID: "6"}
)

func ids(messages []models.ChatMessage) []string {
	out := make([]string, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.ID)
	}
	return out
}

func drain(f *Feed) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-f.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFeedPaginationScenario(t *testing.T) {
	store := &fakeMessageStore{messages: seedMessages(5)}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{PageSize: 2})
	ctx := context.Background()

	require.NoError(t, feed.LoadNewest(ctx, 2))
	state := feed.State()
	assert.Equal(t, []string{"m4", "m5"}, ids(state.Messages))
	assert.True(t, state.HasMoreOlder)

	require.NoError(t, feed.LoadOlder(ctx, 2))
	require.NotNil(t, store.befores[1])
	assert.Equal(t, baseTime.Add(4*time.Minute), *store.befores[1])
	state = feed.State()
	assert.Equal(t, []string{"m2", "m3", "m4", "m5"}, ids(state.Messages))
	assert.True(t, state.HasMoreOlder, "exactly a full page came back")

	require.NoError(t, feed.LoadOlder(ctx, 2))
	state = feed.State()
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, ids(state.Messages))
	assert.False(t, state.HasMoreOlder)
}

func TestFeedLoadOlderDeduplicatesOverlap(t *testing.T) {
	store := &fakeMessageStore{messages: seedMessages(4)}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{})
	ctx := context.Background()
	require.NoError(t, feed.LoadNewest(ctx, 2))

	// The older range now returns m3 again, as overlapping fetches can.
	store.mu.Lock()
	store.messages = append(store.messages, models.ChatMessage{ID: "m3", ClassID: "6", CreatedAt: baseTime.Add(2 * time.Minute)})
	store.mu.Unlock()

	require.NoError(t, feed.LoadOlder(ctx, 3))
	messages := feed.State().Messages
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(messages))
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
}

func TestFeedLoadNewestIsIdempotent(t *testing.T) {
	store := &fakeMessageStore{messages: seedMessages(3)}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{})
	ctx := context.Background()

	require.NoError(t, feed.LoadNewest(ctx, 10))
	first := drain(feed)
	require.Len(t, first, 1)
	assert.Equal(t, WindowChanged, first[0].Kind)

	require.NoError(t, feed.LoadNewest(ctx, 10))
	assert.Empty(t, drain(feed))
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(feed.State().Messages))
}

func TestFeedFetchFailureLeavesWindow(t *testing.T) {
	store := &fakeMessageStore{messages: seedMessages(3)}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{})
	ctx := context.Background()
	require.NoError(t, feed.LoadNewest(ctx, 2))

	store.listErr = errors.New("offline")
	err := feed.LoadOlder(ctx, 2)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, []string{"m2", "m3"}, ids(feed.State().Messages))
}

func TestFeedLockedStudentSendMakesNoCalls(t *testing.T) {
	store := &fakeMessageStore{}
	settings := &fakeSettingStore{setting: &models.ChatSetting{ID: "setting-9", ClassID: "6", Locked: true}}
	uploader := &fakeUploader{}
	feed := New(studentSession, store, settings, Config{Uploader: uploader})
	ctx := context.Background()
	require.NoError(t, feed.RefreshLock(ctx))
	before := feed.State()
	drain(feed)

	_, err := feed.Send(ctx, "hi", &Attachment{FileName: "a.png", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrChatLocked)
	assert.Zero(t, store.calls())
	assert.Empty(t, uploader.names)
	assert.Equal(t, before.Messages, feed.State().Messages)
	assert.Empty(t, drain(feed))
}

func TestFeedLockedTeacherCanSend(t *testing.T) {
	store := &fakeMessageStore{}
	settings := &fakeSettingStore{setting: &models.ChatSetting{ID: "setting-9", ClassID: "6", Locked: true}}
	feed := New(teacherSession, store, settings, Config{})
	require.NoError(t, feed.RefreshLock(context.Background()))

	saved, err := feed.Send(context.Background(), "quiet please", nil)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", saved.SenderID)
}

func TestFeedSendReconciles(t *testing.T) {
	store := &fakeMessageStore{messages: seedMessages(2)}
	uploader := &fakeUploader{}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{Uploader: uploader, Now: func() time.Time { return baseTime }})
	ctx := context.Background()
	require.NoError(t, feed.LoadNewest(ctx, 10))
	drain(feed)

	saved, err := feed.Send(ctx, "  with photo ", &Attachment{FileName: "photo.png", Content: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "with photo", saved.Text)
	require.NotNil(t, saved.AttachmentRef)
	assert.Equal(t, "ref-1.png", *saved.AttachmentRef)

	events := drain(feed)
	require.Len(t, events, 2)
	pending := events[0].Messages[len(events[0].Messages)-1]
	assert.Equal(t, "tmp-1", pending.ID)
	assert.True(t, pending.Pending)

	messages := feed.State().Messages
	assert.Equal(t, []string{"m1", "m2", saved.ID}, ids(messages))
	for _, msg := range messages {
		assert.False(t, msg.Pending)
	}
}

func TestFeedSendAfterPollBroughtMessage(t *testing.T) {
	store := &fakeMessageStore{}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{})
	ctx := context.Background()

	saved, err := feed.Send(ctx, "hi", nil)
	require.NoError(t, err)
	require.NoError(t, feed.LoadNewest(ctx, 10))
	assert.Equal(t, []string{saved.ID}, ids(feed.State().Messages))
}

func TestFeedSendFailureRemovesProvisional(t *testing.T) {
	store := &fakeMessageStore{messages: seedMessages(2), createErr: errors.New("boom")}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{})
	ctx := context.Background()
	require.NoError(t, feed.LoadNewest(ctx, 10))
	before := ids(feed.State().Messages)

	_, err := feed.Send(ctx, "hi", nil)
	require.Error(t, err)
	assert.Equal(t, before, ids(feed.State().Messages))

	uploader := &fakeUploader{err: errors.New("too big")}
	feed = New(studentSession, &fakeMessageStore{}, &fakeSettingStore{}, Config{Uploader: uploader})
	_, err = feed.Send(ctx, "", &Attachment{FileName: "a.bin", Content: strings.NewReader("x")})
	require.Error(t, err)
	assert.Empty(t, feed.State().Messages)
}

func TestFeedSendValidation(t *testing.T) {
	feed := New(studentSession, &fakeMessageStore{}, &fakeSettingStore{}, Config{})
	_, err := feed.Send(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = feed.Send(context.Background(), "", &Attachment{FileName: "a.png"})
	assert.ErrorIs(t, err, ErrNoUploader)
}

func TestFeedSetLockRemembersSettingID(t *testing.T) {
	settings := &fakeSettingStore{}
	feed := New(teacherSession, &fakeMessageStore{}, settings, Config{})
	ctx := context.Background()

	require.NoError(t, feed.SetLock(ctx, true))
	require.NoError(t, feed.SetLock(ctx, false))
	require.NoError(t, feed.SetLock(ctx, true))

	assert.Equal(t, 1, settings.creates)
	assert.Equal(t, []string{"setting-1", "setting-1"}, settings.updates)
	state := feed.State()
	assert.True(t, state.Locked)
	assert.Equal(t, "setting-1", state.LockSettingID)
}

func TestFeedSetLockUsesRefreshedID(t *testing.T) {
	settings := &fakeSettingStore{setting: &models.ChatSetting{ID: "setting-7", ClassID: "6"}}
	feed := New(teacherSession, &fakeMessageStore{}, settings, Config{})
	ctx := context.Background()

	require.NoError(t, feed.RefreshLock(ctx))
	require.NoError(t, feed.SetLock(ctx, true))
	assert.Zero(t, settings.creates)
	assert.Equal(t, []string{"setting-7"}, settings.updates)
}

func TestFeedSetLockRollsBack(t *testing.T) {
	settings := &fakeSettingStore{writeErr: errors.New("denied")}
	feed := New(teacherSession, &fakeMessageStore{}, settings, Config{})

	err := feed.SetLock(context.Background(), true)
	require.Error(t, err)
	assert.False(t, feed.State().Locked)

	events := drain(feed)
	require.Len(t, events, 2)
	assert.True(t, events[0].Locked)
	assert.False(t, events[1].Locked)

	student := New(studentSession, &fakeMessageStore{}, settings, Config{})
	assert.ErrorIs(t, student.SetLock(context.Background(), true), ErrNotModerator)
}

func TestFeedPollPropagatesLock(t *testing.T) {
	settings := &fakeSettingStore{}
	store := &fakeMessageStore{messages: seedMessages(1)}
	teacher := New(teacherSession, store, settings, Config{})
	student := New(studentSession, store, settings, Config{})
	ctx := context.Background()

	require.NoError(t, student.Poll(ctx))
	assert.False(t, student.State().Locked)

	require.NoError(t, teacher.SetLock(ctx, true))
	require.NoError(t, student.Poll(ctx))
	assert.True(t, student.State().Locked)
	assert.Equal(t, "setting-1", student.State().LockSettingID)

	_, err := student.Send(ctx, "hi", nil)
	assert.ErrorIs(t, err, ErrChatLocked)
}

func TestFeedPollFailureIsWarning(t *testing.T) {
	store := &fakeMessageStore{listErr: errors.New("offline")}
	settings := &fakeSettingStore{findErr: errors.New("offline")}
	feed := New(studentSession, store, settings, Config{})

	err := feed.Poll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)

	events := drain(feed)
	require.Len(t, events, 1)
	assert.Equal(t, Warning, events[0].Kind)
	assert.Empty(t, feed.State().Messages)
}

func TestFeedCloseDiscardsInFlight(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeMessageStore{messages: seedMessages(3), gate: gate}
	feed := New(studentSession, store, &fakeSettingStore{}, Config{})

	done := make(chan error, 1)
	go func() { done <- feed.LoadNewest(context.Background(), 10) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.listCalls == 1
	}, time.Second, 5*time.Millisecond)

	feed.Close()
	close(gate)
	require.NoError(t, <-done)

	assert.Empty(t, feed.State().Messages)
	_, open := <-feed.Events()
	assert.False(t, open)

	assert.ErrorIs(t, feed.LoadNewest(context.Background(), 10), ErrClosed)
	_, err := feed.Send(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFeedEventsNeverBlock(t *testing.T) {
	feed := New(teacherSession, &fakeMessageStore{}, &fakeSettingStore{}, Config{EventBuffer: 1})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, feed.SetLock(ctx, i%2 == 0))
	}
	events := drain(feed)
	require.Len(t, events, 1)
	assert.True(t, events[0].Locked)
}

func TestMergeKeepsPendingAtTail(t *testing.T) {
	window := []models.ChatMessage{
		{ID: "a", CreatedAt: baseTime},
		{ID: "tmp-1", CreatedAt: baseTime.Add(-time.Hour), Pending: true},
	}
	incoming := []models.ChatMessage{
		{ID: "b", CreatedAt: baseTime.Add(time.Minute)},
		{ID: "a", CreatedAt: baseTime},
	}
	assert.Equal(t, []string{"a", "b", "tmp-1"}, ids(merge(window, incoming)))
}
