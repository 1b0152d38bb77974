// Package chatfeed keeps a client-side view of one class chat: a deduplicated,
// oldest-first message window with backward pagination, optimistic send and the
// class lock flag.
package chatfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

var (
	// ErrFetchFailed marks a soft failure of a read. The window is left unchanged.
	ErrFetchFailed = errors.New("chatfeed: fetch failed")
	// ErrChatLocked is returned when a non-moderator sends into a locked class.
	ErrChatLocked = errors.New("chatfeed: chat is locked")
	// ErrNotModerator is returned when a student tries to change the lock.
	ErrNotModerator = errors.New("chatfeed: only teachers can change the lock")
	// ErrEmptyMessage is returned when neither text nor an attachment is given.
	ErrEmptyMessage = errors.New("chatfeed: message needs text or an attachment")
	// ErrNoUploader is returned when an attachment is sent without an uploader.
	ErrNoUploader = errors.New("chatfeed: attachments are not supported by this feed")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("chatfeed: feed closed")
)

const (
	defaultPageSize    = 100
	defaultEventBuffer = 32
	tempIDPrefix       = "tmp-"
)

// MessageStore lists and persists class messages. List returns messages newest
// first, strictly older than before when it is set.
type MessageStore interface {
	List(ctx context.Context, classID string, limit int, before *time.Time) ([]models.ChatMessage, error)
	Create(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error)
}

// SettingStore reads and writes the per-class lock setting. FindByClass returns
// nil without an error when the class has no setting yet.
type SettingStore interface {
	FindByClass(ctx context.Context, classID string) (*models.ChatSetting, error)
	Create(ctx context.Context, classID string, locked bool) (*models.ChatSetting, error)
	Update(ctx context.Context, id, classID string, locked bool) (*models.ChatSetting, error)
}

// Uploader stores an attachment and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, fileName string, r io.Reader) (*models.Attachment, error)
}

// Session identifies who is looking at which class.
type Session struct {
	UserID  string
	Name    string
	Role    models.UserRole
	ClassID string
}

func (s Session) moderator() bool {
	return s.Role == models.RoleTeacher || s.Role == models.RoleAdmin
}

// Attachment is a file to send along with a message.
type Attachment struct {
	FileName string
	Content  io.Reader
}

// Config tunes a Feed.
type Config struct {
	PageSize    int
	EventBuffer int
	Uploader    Uploader
	Logger      *zap.Logger
	Now         func() time.Time
}

// EventKind identifies what changed.
type EventKind int

const (
	WindowChanged EventKind = iota + 1
	LockChanged
	Warning
)

func (k EventKind) String() string {
	switch k {
	case WindowChanged:
		return "window_changed"
	case LockChanged:
		return "lock_changed"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Event carries a snapshot of the state that changed.
type Event struct {
	Kind         EventKind
	Messages     []models.ChatMessage
	HasMoreOlder bool
	Locked       bool
	Err          error
}

// State is a copy of the feed state.
type State struct {
	Messages      []models.ChatMessage
	HasMoreOlder  bool
	Locked        bool
	LockSettingID string
}

// Feed is safe for concurrent use. The mutex is never held across a store call;
// results are applied after the call returns and dropped if the feed was closed
// in the meantime.
type Feed struct {
	session  Session
	messages MessageStore
	settings SettingStore
	uploader Uploader
	logger   *zap.Logger
	pageSize int
	now      func() time.Time

	mu            sync.Mutex
	window        []models.ChatMessage
	oldest        *time.Time
	hasMoreOlder  bool
	pagedBack     bool
	locked        bool
	lockSettingID string
	generation    uint64
	tempSeq       int
	closed        bool
	events        chan Event
}

// New creates a feed for the session's class.
func New(session Session, messages MessageStore, settings SettingStore, cfg Config) *Feed {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Feed{
		session:  session,
		messages: messages,
		settings: settings,
		uploader: cfg.Uploader,
		logger:   cfg.Logger.With(zap.String("class_id", session.ClassID)),
		pageSize: cfg.PageSize,
		now:      cfg.Now,
		events:   make(chan Event, cfg.EventBuffer),
	}
}

// Events delivers state changes. When the consumer falls behind the oldest
// pending event is dropped, so the latest snapshot always gets through. The
// channel is closed by Close.
func (f *Feed) Events() <-chan Event {
	return f.events
}

// Session returns the identity the feed was opened with.
func (f *Feed) Session() Session {
	return f.session
}

// PageSize is the page size used by Poll.
func (f *Feed) PageSize() int {
	return f.pageSize
}

// State returns a copy of the current state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Messages:      cloneMessages(f.window),
		HasMoreOlder:  f.hasMoreOlder,
		Locked:        f.locked,
		LockSettingID: f.lockSettingID,
	}
}

// LoadNewest fetches the newest page and merges it into the window.
func (f *Feed) LoadNewest(ctx context.Context, pageSize int) error {
	gen, err := f.begin()
	if err != nil {
		return err
	}
	if pageSize <= 0 {
		pageSize = f.pageSize
	}

	page, err := f.messages.List(ctx, f.session.ClassID, pageSize, nil)
	if err != nil {
		return fmt.Errorf("%w: load newest: %w", ErrFetchFailed, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.current(gen) {
		return nil
	}
	if !f.pagedBack {
		f.hasMoreOlder = len(page) == pageSize
	}
	f.apply(merge(f.window, ascending(page)))
	return nil
}

// LoadOlder fetches the page before the oldest loaded message and prepends the
// messages not already in the window.
func (f *Feed) LoadOlder(ctx context.Context, pageSize int) error {
	gen, err := f.begin()
	if err != nil {
		return err
	}
	if pageSize <= 0 {
		pageSize = f.pageSize
	}

	f.mu.Lock()
	var before *time.Time
	if f.oldest != nil {
		ts := *f.oldest
		before = &ts
	}
	f.mu.Unlock()
	if before == nil {
		return f.LoadNewest(ctx, pageSize)
	}

	page, err := f.messages.List(ctx, f.session.ClassID, pageSize, before)
	if err != nil {
		return fmt.Errorf("%w: load older: %w", ErrFetchFailed, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.current(gen) {
		return nil
	}
	f.pagedBack = true
	f.hasMoreOlder = len(page) == pageSize
	f.apply(merge(f.window, ascending(page)))
	return nil
}

// Send appends a pending message, uploads the attachment if any, then persists
// the message and swaps the pending entry for the stored one. On failure the
// pending entry is removed.
func (f *Feed) Send(ctx context.Context, text string, attachment *Attachment) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return nil, ErrEmptyMessage
	}
	if attachment != nil && f.uploader == nil {
		return nil, ErrNoUploader
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.locked && !f.session.moderator() {
		f.mu.Unlock()
		return nil, ErrChatLocked
	}
	f.tempSeq++
	provisional := models.ChatMessage{
		ID:         fmt.Sprintf("%s%d", tempIDPrefix, f.tempSeq),
		ClassID:    f.session.ClassID,
		SenderID:   f.session.UserID,
		SenderName: f.session.Name,
		Role:       f.session.Role,
		Text:       text,
		CreatedAt:  f.now().UTC(),
		Pending:    true,
	}
	f.apply(append(cloneMessages(f.window), provisional))
	gen := f.generation
	f.mu.Unlock()

	outgoing := provisional
	outgoing.ID = ""
	outgoing.Pending = false
	if attachment != nil {
		uploaded, err := f.uploader.Upload(ctx, attachment.FileName, attachment.Content)
		if err != nil {
			f.dropProvisional(gen, provisional.ID)
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		ref, kind := uploaded.Ref, uploaded.Kind
		outgoing.AttachmentRef = &ref
		outgoing.AttachmentKind = &kind
	}

	saved, err := f.messages.Create(ctx, outgoing)
	if err != nil {
		f.dropProvisional(gen, provisional.ID)
		return nil, fmt.Errorf("send message: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.current(gen) {
		return saved, nil
	}
	f.apply(merge(without(f.window, provisional.ID), []models.ChatMessage{*saved}))
	return saved, nil
}

// SetLock changes the class lock. The local flag flips immediately and is rolled
// back when the write fails. The setting id is remembered so later toggles
// update the same record.
func (f *Feed) SetLock(ctx context.Context, locked bool) error {
	if !f.session.moderator() {
		return ErrNotModerator
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	previous := f.locked
	settingID := f.lockSettingID
	f.setLocked(locked)
	gen := f.generation
	f.mu.Unlock()

	var (
		saved *models.ChatSetting
		err   error
	)
	if settingID != "" {
		saved, err = f.settings.Update(ctx, settingID, f.session.ClassID, locked)
	} else {
		saved, err = f.settings.Create(ctx, f.session.ClassID, locked)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.current(gen) {
		return err
	}
	if err != nil {
		f.setLocked(previous)
		return fmt.Errorf("set lock: %w", err)
	}
	if saved != nil && saved.ID != "" {
		f.lockSettingID = saved.ID
	}
	return nil
}

// RefreshLock reads the class setting and remembers its id.
func (f *Feed) RefreshLock(ctx context.Context) error {
	gen, err := f.begin()
	if err != nil {
		return err
	}

	setting, err := f.settings.FindByClass(ctx, f.session.ClassID)
	if err != nil {
		return fmt.Errorf("%w: refresh lock: %w", ErrFetchFailed, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.current(gen) {
		return nil
	}
	if setting == nil {
		f.setLocked(false)
		return nil
	}
	f.lockSettingID = setting.ID
	f.setLocked(setting.Locked)
	return nil
}

// Poll refreshes the newest page and the lock. Failures are reported as Warning
// events and returned combined; they never touch the window.
func (f *Feed) Poll(ctx context.Context) error {
	var errs error
	if err := f.LoadNewest(ctx, f.pageSize); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := f.RefreshLock(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs == nil || errors.Is(errs, ErrClosed) {
		return errs
	}

	f.logger.Debug("chat poll failed", zap.Error(errs))
	f.mu.Lock()
	f.emit(Event{Kind: Warning, Err: errs})
	f.mu.Unlock()
	return errs
}

// Close stops event delivery and discards the results of calls still in flight.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.generation++
	close(f.events)
}

func (f *Feed) begin() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	return f.generation, nil
}

// current reports whether a call started at gen may still apply its result.
// Callers hold f.mu.
func (f *Feed) current(gen uint64) bool {
	return !f.closed && f.generation == gen
}

func (f *Feed) dropProvisional(gen uint64, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.current(gen) {
		return
	}
	f.apply(without(f.window, id))
}

// apply installs next as the window and emits WindowChanged when the id
// sequence differs. Callers hold f.mu.
func (f *Feed) apply(next []models.ChatMessage) {
	if sameIDs(f.window, next) {
		return
	}
	f.window = next
	f.oldest = nil
	for _, msg := range next {
		if msg.Pending {
			continue
		}
		ts := msg.CreatedAt
		f.oldest = &ts
		break
	}
	f.emit(Event{Kind: WindowChanged, Messages: cloneMessages(next), HasMoreOlder: f.hasMoreOlder})
}

func (f *Feed) setLocked(locked bool) {
	if f.locked == locked {
		return
	}
	f.locked = locked
	f.emit(Event{Kind: LockChanged, Locked: locked})
}

// emit never blocks. Callers hold f.mu.
func (f *Feed) emit(ev Event) {
	if f.closed {
		return
	}
	for {
		select {
		case f.events <- ev:
			return
		default:
		}
		select {
		case <-f.events:
			f.logger.Debug("chat event dropped", zap.Stringer("kind", ev.Kind))
		default:
		}
	}
}

// merge returns the union of window and incoming keyed by id. Persisted
// messages are sorted by creation time and pending ones stay at the tail in
// their original order. Entries already in the window win since messages are
// immutable.
func merge(window, incoming []models.ChatMessage) []models.ChatMessage {
	seen := make(map[string]struct{}, len(window)+len(incoming))
	persisted := make([]models.ChatMessage, 0, len(window)+len(incoming))
	var pending []models.ChatMessage

	for _, msg := range window {
		seen[msg.ID] = struct{}{}
		if msg.Pending {
			pending = append(pending, msg)
			continue
		}
		persisted = append(persisted, msg)
	}
	for _, msg := range incoming {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		seen[msg.ID] = struct{}{}
		persisted = append(persisted, msg)
	}

	sort.SliceStable(persisted, func(i, j int) bool {
		return persisted[i].CreatedAt.Before(persisted[j].CreatedAt)
	})
	return append(persisted, pending...)
}

// ascending reverses a newest-first page.
func ascending(page []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(page))
	for i, msg := range page {
		out[len(page)-1-i] = msg
	}
	return out
}

func without(window []models.ChatMessage, id string) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(window))
	for _, msg := range window {
		if msg.ID != id {
			out = append(out, msg)
		}
	}
	return out
}

func sameIDs(a, b []models.ChatMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func cloneMessages(src []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(src))
	copy(out, src)
	return out
}
