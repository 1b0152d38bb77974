// Package apiclient talks to the classroom API over HTTP and implements the
// collaborators a chatfeed.Feed needs.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/chatfeed"
	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

const defaultTimeout = 15 * time.Second

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

// Client is an authenticated API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for baseURL, e.g. http://localhost:8080/api/v1.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, logger: logger}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login authenticates and keeps the access token.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	body := models.LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, body, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*models.UserInfo, error) {
	var out models.UserInfo
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyProfile returns the student profile of the signed-in user.
func (c *Client) MyProfile(ctx context.Context) (*models.Student, error) {
	var out models.Student
	if err := c.doJSON(ctx, http.MethodGet, "/students/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload sends a file to the attachment endpoint.
func (c *Client) Upload(ctx context.Context, fileName string, r io.Reader) (*models.Attachment, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/attachments", nil, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out models.Attachment
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachmentURL returns a signed view URL for an attachment reference.
func (c *Client) AttachmentURL(ctx context.Context, ref, variant string) (*dto.AttachmentURLResponse, error) {
	query := url.Values{}
	if variant != "" {
		query.Set("variant", variant)
	}
	var out dto.AttachmentURLResponse
	if err := c.doJSON(ctx, http.MethodGet, "/attachments/"+url.PathEscape(ref)+"/url", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages adapts the client to chatfeed.MessageStore.
func (c *Client) Messages() chatfeed.MessageStore {
	return messageStore{client: c}
}

// Settings adapts the client to chatfeed.SettingStore.
func (c *Client) Settings() chatfeed.SettingStore {
	return settingStore{client: c}
}

type messageStore struct {
	client *Client
}

func (s messageStore) List(ctx context.Context, classID string, limit int, before *time.Time) ([]models.ChatMessage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if before != nil {
		query.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	var page dto.MessagePage
	if err := s.client.doJSON(ctx, http.MethodGet, classPath(classID, "messages"), query, nil, &page); err != nil {
		return nil, err
	}
	return page.Messages, nil
}

func (s messageStore) Create(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	body := dto.SendMessageRequest{
		Text:           msg.Text,
		AttachmentRef:  msg.AttachmentRef,
		AttachmentKind: msg.AttachmentKind,
	}
	var out models.ChatMessage
	if err := s.client.doJSON(ctx, http.MethodPost, classPath(msg.ClassID, "messages"), nil, body, &out); err != nil {
		if errors.Is(err, appErrors.ErrChatLocked) {
			return nil, fmt.Errorf("%w: %w", chatfeed.ErrChatLocked, err)
		}
		return nil, err
	}
	return &out, nil
}

type settingStore struct {
	client *Client
}

// FindByClass returns nil when the class has never been locked; the API then
// answers with an unsaved default that has no id.
func (s settingStore) FindByClass(ctx context.Context, classID string) (*models.ChatSetting, error) {
	var out models.ChatSetting
	if err := s.client.doJSON(ctx, http.MethodGet, classPath(classID, "chat-settings"), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

func (s settingStore) Create(ctx context.Context, classID string, locked bool) (*models.ChatSetting, error) {
	return s.put(ctx, classID, dto.SetLockRequest{Locked: locked})
}

func (s settingStore) Update(ctx context.Context, id, classID string, locked bool) (*models.ChatSetting, error) {
	return s.put(ctx, classID, dto.SetLockRequest{SettingID: id, Locked: locked})
}

func (s settingStore) put(ctx context.Context, classID string, body dto.SetLockRequest) (*models.ChatSetting, error) {
	var out models.ChatSetting
	if err := s.client.doJSON(ctx, http.MethodPut, classPath(classID, "chat-settings"), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func classPath(classID, resource string) string {
	return "/classes/" + url.PathEscape(classID) + "/" + resource
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes the envelope. API errors come back as *errors.Error
// so callers can match them with errors.Is against the shared error values.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	c.logger.Debug("api call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest || env.Error != nil {
		if env.Error == nil {
			return appErrors.New("HTTP_"+strconv.Itoa(resp.StatusCode), resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		env.Error.Status = resp.StatusCode
		return env.Error
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
