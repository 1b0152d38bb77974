package dto

import "github.com/noah-isme/sma-classroom-api/internal/models"

// SendMessageRequest captures POST /classes/:classId/messages payload.
type SendMessageRequest struct {
	Text           string                 `json:"text" validate:"max=4000"`
	AttachmentRef  *string                `json:"attachmentRef,omitempty"`
	AttachmentKind *models.AttachmentKind `json:"attachmentKind,omitempty" validate:"omitempty,oneof=image file"`
}

// SetLockRequest captures PUT /classes/:classId/chat-settings payload.
// SettingID is the handle the client remembered from an earlier read; empty means create.
type SetLockRequest struct {
	SettingID string `json:"settingId,omitempty"`
	Locked    bool   `json:"locked"`
}

// MessagePage is a page of messages, newest first.
type MessagePage struct {
	Messages []models.ChatMessage `json:"messages"`
	Limit    int                  `json:"limit"`
}

// AttachmentURLResponse carries a signed view URL.
type AttachmentURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
