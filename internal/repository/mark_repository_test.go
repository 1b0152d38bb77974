package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

var markRowColumns = []string{"id", "student_id", "subject", "exam_type", "score", "max_score", "class_id", "created_at", "updated_at"}

func TestMarkRepositoryListByClassExam(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(markRowColumns).
		AddRow("m1", "s1", "Math", "1", 80.0, 100.0, "6", now, now).
		AddRow("m2", "u2", "Math", "1", 70.0, 100.0, "6", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM marks WHERE class_id = $1 AND exam_type = $2 ORDER BY created_at ASC, id ASC")).
		WithArgs("6", "1").
		WillReturnRows(rows)

	records, err := repo.ListByClassExam(context.Background(), "6", models.ExamFirst)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ExamFirst, records[0].ExamType)
	assert.Equal(t, 70.0, records[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryListByStudents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM marks WHERE student_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(markRowColumns))

	records, err := repo.List(context.Background(), models.MarkFilter{StudentIDs: []string{"s1", "u1"}})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryFindByKeyMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarkRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM marks WHERE student_id = ANY($1) AND subject = $2 AND exam_type = $3")).
		WithArgs(pq.Array([]string{"s1", "user-s1"}), "Math", "2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByKey(context.Background(), []string{"s1", "user-s1"}, "Math", models.ExamSecond)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAttendanceRepositoryUpdateDays(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance SET days = $2, teacher_id = $3")).
		WithArgs("a1", 20, "t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateDays(context.Background(), "a1", "t1", 20))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListByYear(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance WHERE student_id = ANY($1) AND year = $2")).
		WithArgs(sqlmock.AnyArg(), 2024).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "teacher_id", "year", "month", "days", "created_at", "updated_at"}).
			AddRow("a1", "s1", "t1", 2024, "Jan", 22, now, now))

	rows, err := repo.List(context.Background(), models.AttendanceFilter{StudentIDs: []string{"s1"}, Year: 2024})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jan", rows[0].Month)
	assert.NoError(t, mock.ExpectationsWereMet())
}
