package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

const chatSettingColumns = `id, class_id, locked, updated_by, created_at, updated_at`

// ChatSettingRepository stores the per-class chat lock.
type ChatSettingRepository struct {
	db *sqlx.DB
}

// NewChatSettingRepository constructs a ChatSettingRepository.
func NewChatSettingRepository(db *sqlx.DB) *ChatSettingRepository {
	return &ChatSettingRepository{db: db}
}

// FindByClass returns the oldest setting for a class.
func (r *ChatSettingRepository) FindByClass(ctx context.Context, classID string) (*models.ChatSetting, error) {
	query := `SELECT ` + chatSettingColumns + ` FROM chat_settings WHERE class_id = $1 ORDER BY created_at ASC LIMIT 1`
	var setting models.ChatSetting
	if err := r.db.GetContext(ctx, &setting, query, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chat setting: %w", err)
	}
	return &setting, nil
}

// FindByID returns a setting by id.
func (r *ChatSettingRepository) FindByID(ctx context.Context, id string) (*models.ChatSetting, error) {
	query := `SELECT ` + chatSettingColumns + ` FROM chat_settings WHERE id = $1`
	var setting models.ChatSetting
	if err := r.db.GetContext(ctx, &setting, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chat setting by id: %w", err)
	}
	return &setting, nil
}

// Create inserts a new setting.
func (r *ChatSettingRepository) Create(ctx context.Context, setting *models.ChatSetting) error {
	if setting.ID == "" {
		setting.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	setting.CreatedAt = now
	setting.UpdatedAt = now
	const query = `INSERT INTO chat_settings (id, class_id, locked, updated_by, created_at, updated_at)
        VALUES (:id, :class_id, :locked, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, setting); err != nil {
		return fmt.Errorf("create chat setting: %w", err)
	}
	return nil
}

// UpdateLock overwrites the lock flag. The last writer wins.
func (r *ChatSettingRepository) UpdateLock(ctx context.Context, id string, locked bool, updatedBy string) error {
	const query = `UPDATE chat_settings SET locked = $2, updated_by = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, locked, updatedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update chat setting: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
