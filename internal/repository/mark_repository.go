package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

const markColumns = `id, student_id, subject, exam_type, score, max_score, class_id, created_at, updated_at`

// MarkRepository persists subject score records.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository constructs a MarkRepository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// List returns score records matching the filter in insertion order.
func (r *MarkRepository) List(ctx context.Context, filter models.MarkFilter) ([]models.ScoreRecord, error) {
	var where []string
	var args []interface{}

	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if len(filter.StudentIDs) > 0 {
		where = append(where, fmt.Sprintf("student_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.StudentIDs))
	}
	if filter.ExamType != nil {
		where = append(where, fmt.Sprintf("exam_type = $%d", len(args)+1))
		args = append(args, string(*filter.ExamType))
	}
	if filter.Subject != "" {
		where = append(where, fmt.Sprintf("subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}

	query := `SELECT ` + markColumns + ` FROM marks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	var records []models.ScoreRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	return records, nil
}

// ListByClassExam returns every record of one exam in a class.
func (r *MarkRepository) ListByClassExam(ctx context.Context, classID string, exam models.ExamType) ([]models.ScoreRecord, error) {
	return r.List(ctx, models.MarkFilter{ClassID: classID, ExamType: &exam})
}

// FindByKey returns the oldest record for a subject and exam filed under any of
// studentIDs, so a profile id and its user id resolve to the same record.
func (r *MarkRepository) FindByKey(ctx context.Context, studentIDs []string, subject string, exam models.ExamType) (*models.ScoreRecord, error) {
	query := `SELECT ` + markColumns + ` FROM marks WHERE student_id = ANY($1) AND subject = $2 AND exam_type = $3 ORDER BY created_at ASC, id ASC LIMIT 1`
	var record models.ScoreRecord
	if err := r.db.GetContext(ctx, &record, query, pq.Array(studentIDs), subject, string(exam)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find mark: %w", err)
	}
	return &record, nil
}

// Create inserts a score record.
func (r *MarkRepository) Create(ctx context.Context, record *models.ScoreRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO marks (id, student_id, subject, exam_type, score, max_score, class_id, created_at, updated_at)
        VALUES (:id, :student_id, :subject, :exam_type, :score, :max_score, :class_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create mark: %w", err)
	}
	return nil
}

// UpdateScore changes the score and maximum of an existing record in place.
func (r *MarkRepository) UpdateScore(ctx context.Context, id string, score, maxScore float64) error {
	const query = `UPDATE marks SET score = $2, max_score = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, score, maxScore, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update mark: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
