package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

const messageColumns = `id, class_id, sender_id, sender_name, role, text, attachment_ref, attachment_kind, created_at`

// MessageRepository stores class chat messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// List returns up to q.Limit messages of a class, newest first.
// When q.Before is set only messages created strictly earlier are returned.
func (r *MessageRepository) List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error) {
	args := []interface{}{q.ClassID}
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE class_id = $1`
	if q.Before != nil {
		query += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, q.Before.UTC())
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", q.Limit)

	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return messages, nil
}

// Create stores a message. The creation time is assigned here so the server clock orders the feed.
func (r *MessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()
	msg.Pending = false
	const query = `INSERT INTO chat_messages (id, class_id, sender_id, sender_name, role, text, attachment_ref, attachment_kind, created_at)
        VALUES (:id, :class_id, :sender_id, :sender_name, :role, :text, :attachment_ref, :attachment_kind, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create chat message: %w", err)
	}
	return nil
}
