package models

import "time"

// AttachmentKind tells clients how to render an attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// ChatMessage is a single class chat message. Messages are immutable once stored.
type ChatMessage struct {
	ID             string          `db:"id" json:"id"`
	ClassID        string          `db:"class_id" json:"class_id"`
	SenderID       string          `db:"sender_id" json:"sender_id"`
	SenderName     string          `db:"sender_name" json:"sender_name"`
	Role           UserRole        `db:"role" json:"role"`
	Text           string          `db:"text" json:"text"`
	AttachmentRef  *string         `db:"attachment_ref" json:"attachment_ref,omitempty"`
	AttachmentKind *AttachmentKind `db:"attachment_kind" json:"attachment_kind,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	// Pending marks a locally created message that has not been persisted yet.
	Pending bool `db:"-" json:"pending,omitempty"`
}

// ChatSetting holds the per-class chat lock.
type ChatSetting struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Locked    bool      `db:"locked" json:"locked"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MessageQuery selects a page of messages, newest first.
type MessageQuery struct {
	ClassID string
	Limit   int
	Before  *time.Time
}

// Attachment describes an uploaded chat file.
type Attachment struct {
	Ref         string         `json:"ref"`
	Bucket      string         `json:"bucket"`
	Kind        AttachmentKind `json:"kind"`
	ContentType string         `json:"content_type"`
	Size        int64          `json:"size"`
	FileName    string         `json:"file_name"`
}
