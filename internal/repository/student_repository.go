package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

const studentColumns = `id, user_id, class_id, roll, full_name, phone, age, father_name, address, section, created_at, updated_at`

const incompleteStudentClause = `phone IS NULL OR phone = '' OR father_name IS NULL OR father_name = '' OR section IS NULL OR section = '' OR age IS NULL OR address IS NULL`

// StudentRepository manages persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters ordered by class then roll.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base := "FROM students WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY class_id ASC, roll ASC LIMIT %d OFFSET %d", studentColumns, base, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListByClass returns the full roster of a class ordered by roll. Ties on roll keep id order.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE class_id = $1 ORDER BY roll ASC, id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list students by class: %w", err)
	}
	return students, nil
}

// FindByID fetches a student profile by its id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByUserID fetches the profile owned by an account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE user_id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by user: %w", err)
	}
	return &student, nil
}

// ExistsByRoll checks whether a roll number is taken in a class, optionally excluding one profile.
func (r *StudentRepository) ExistsByRoll(ctx context.Context, classID string, roll int, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE class_id = $1 AND roll = $2"
	args := []interface{}{classID, roll}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check roll: %w", err)
	}
	return true, nil
}

// Create inserts a student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, user_id, class_id, roll, full_name, phone, age, father_name, address, section, created_at, updated_at)
        VALUES (:id, :user_id, :class_id, :roll, :full_name, :phone, :age, :father_name, :address, :section, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CountIncomplete returns how many profiles are missing any backfilled field.
func (r *StudentRepository) CountIncomplete(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students WHERE "+incompleteStudentClause); err != nil {
		return 0, fmt.Errorf("count incomplete students: %w", err)
	}
	return total, nil
}

// BackfillDefaults fills empty profile fields with defaults and reports the rows touched.
// Fields that already hold a value are left alone.
func (r *StudentRepository) BackfillDefaults(ctx context.Context) (int64, error) {
	query := `UPDATE students SET
        phone = COALESCE(NULLIF(phone, ''), $1),
        father_name = COALESCE(NULLIF(father_name, ''), $2),
        section = COALESCE(NULLIF(section, ''), $3),
        age = COALESCE(age, 0),
        address = COALESCE(address, ''),
        updated_at = $4
        WHERE ` + incompleteStudentClause
	res, err := r.db.ExecContext(ctx, query, models.DefaultStudentPhone, models.DefaultStudentFatherName, models.DefaultStudentSection, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("backfill students: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backfill students: %w", err)
	}
	return affected, nil
}
