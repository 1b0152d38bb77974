package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

var studentRowColumns = []string{"id", "user_id", "class_id", "roll", "full_name", "phone", "age", "father_name", "address", "section", "created_at", "updated_at"}

func TestStudentRepositoryListByClassOrdersByRoll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(studentRowColumns).
		AddRow("s1", "u1", "6", 1, "Alice", "+1", 12, "Bob", "Street", "A", now, now).
		AddRow("s2", "u2", "6", 2, "Carol", "+2", 12, "Dan", "Road", "A", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE class_id = $1 ORDER BY roll ASC, id ASC")).
		WithArgs("6").
		WillReturnRows(rows)

	students, err := repo.ListByClass(context.Background(), "6")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "s1", students[0].ID)
	assert.Equal(t, "u2", students[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByRoll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE class_id = $1 AND roll = $2 AND id <> $3 LIMIT 1")).
		WithArgs("6", 3, "s1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByRoll(context.Background(), "6", 3, "s1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{UserID: "u1", ClassID: "6", Roll: 4, FullName: "Eve"}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.False(t, student.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryBackfillDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET")).
		WithArgs(models.DefaultStudentPhone, models.DefaultStudentFatherName, models.DefaultStudentSection, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.BackfillDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
