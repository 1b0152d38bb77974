package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

type fakeMarkService struct {
	result *models.BulkResult
	err    error
}

func (f *fakeMarkService) ListForStudent(context.Context, string, string, models.UserRole, string) ([]models.ScoreRecord, error) {
	return []models.ScoreRecord{}, nil
}

func (f *fakeMarkService) BulkUpsert(context.Context, string, dto.BulkMarksRequest) (*models.BulkResult, error) {
	return f.result, f.err
}

type fakeAttendanceService struct {
	year int
}

func (f *fakeAttendanceService) ListYear(_ context.Context, _, _ string, _ models.UserRole, year int) (*dto.AttendanceYearResponse, error) {
	f.year = year
	return &dto.AttendanceYearResponse{Year: year, Months: []models.Attendance{}}, nil
}

func (f *fakeAttendanceService) BulkUpsert(context.Context, string, dto.BulkAttendanceRequest) (*models.BulkResult, error) {
	return &models.BulkResult{Created: 1}, nil
}

var bulkMarks = dto.BulkMarksRequest{
	ClassID:  "6",
	ExamType: models.ExamFirst,
	Entries:  []dto.MarkEntry{{StudentID: "S1", Subject: "Math", Score: 80, MaxScore: 100}},
}

func TestMarkHandlerBulkPartialFailure(t *testing.T) {
	svc := &fakeMarkService{
		result: &models.BulkResult{Created: 1, Failed: 1},
		err:    appErrors.Clone(appErrors.ErrPartialFailure, "1 of 2 marks writes failed"),
	}
	h := NewMarkHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/marks/bulk", bulkMarks, teacherClaims)
	h.Bulk(c)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var result models.BulkResult
	env := decodeEnvelope(t, rec, &result)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PARTIAL_FAILURE", env.Error.Code)
	assert.Equal(t, 1, result.Failed)
}

func TestMarkHandlerBulkOutcomes(t *testing.T) {
	h := NewMarkHandler(&fakeMarkService{result: &models.BulkResult{Updated: 1}})
	c, rec := newTestContext(http.MethodPost, "/marks/bulk", bulkMarks, teacherClaims)
	h.Bulk(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewMarkHandler(&fakeMarkService{err: appErrors.Clone(appErrors.ErrValidation, "unknown subject")})
	c, rec = newTestContext(http.MethodPost, "/marks/bulk", bulkMarks, teacherClaims)
	h.Bulk(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec, nil)
	assert.Len(t, env.Data, 0)
}

func TestAttendanceHandlerYearQuery(t *testing.T) {
	svc := &fakeAttendanceService{}
	h := NewAttendanceHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/students/me/attendance?year=2023", nil, studentClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2023, svc.year)

	c, rec = newTestContext(http.MethodGet, "/students/me/attendance?year=last", nil, studentClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
