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

const attendanceColumns = `id, student_id, teacher_id, year, month, days, created_at, updated_at`

// AttendanceRepository persists monthly attendance counts.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance rows for the filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, error) {
	var where []string
	var args []interface{}
	if len(filter.StudentIDs) > 0 {
		where = append(where, fmt.Sprintf("student_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.StudentIDs))
	}
	if filter.Year > 0 {
		where = append(where, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Month != "" {
		where = append(where, fmt.Sprintf("month = $%d", len(args)+1))
		args = append(args, filter.Month)
	}

	query := `SELECT ` + attendanceColumns + ` FROM attendance`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY year ASC, created_at ASC"

	var rows []models.Attendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return rows, nil
}

// FindByMonth returns the row for a student and month.
func (r *AttendanceRepository) FindByMonth(ctx context.Context, studentID string, year int, month string) (*models.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE student_id = $1 AND year = $2 AND month = $3 LIMIT 1`
	var row models.Attendance
	if err := r.db.GetContext(ctx, &row, query, studentID, year, month); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &row, nil
}

// Create inserts a monthly row.
func (r *AttendanceRepository) Create(ctx context.Context, row *models.Attendance) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	const query = `INSERT INTO attendance (id, student_id, teacher_id, year, month, days, created_at, updated_at)
        VALUES (:id, :student_id, :teacher_id, :year, :month, :days, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// UpdateDays overwrites the day count of an existing row.
func (r *AttendanceRepository) UpdateDays(ctx context.Context, id, teacherID string, days int) error {
	const query = `UPDATE attendance SET days = $2, teacher_id = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, days, teacherID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
