package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

func TestExportServiceRankSheetCSV(t *testing.T) {
	marks := &memoryMarkRepo{records: []models.ScoreRecord{
		mark("S2", "Math", models.ExamFirst, 88.5),
		mark("S1", "Math", models.ExamFirst, 70),
	}}
	academic := NewAcademicService(classSix(), marks, nil, nil, nil, nil)
	svc := NewExportService(academic, nil)

	out, err := svc.RankSheet(context.Background(), "6", "1", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "ranking-class-6-exam-1.csv", out.FileName)
	assert.Equal(t, "text/csv", out.ContentType)

	lines := strings.Split(strings.TrimSpace(string(out.Payload)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Rank,Roll,Name,Total,Status", lines[0])
	assert.Equal(t, "1,2,Student S2,88.5,Ranked", lines[1])
	assert.Equal(t, "3,3,Student S3,0,Pending", lines[3])
}

func TestExportServiceRankSheetPDFOverall(t *testing.T) {
	academic := NewAcademicService(classSix(), &memoryMarkRepo{}, nil, nil, nil, nil)
	svc := NewExportService(academic, nil)

	out, err := svc.RankSheet(context.Background(), "6", "", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "ranking-class-6-exam-overall.pdf", out.FileName)
	assert.True(t, bytes.HasPrefix(out.Payload, []byte("%PDF-")))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(NewAcademicService(classSix(), &memoryMarkRepo{}, nil, nil, nil, nil), nil)
	_, err := svc.RankSheet(context.Background(), "6", "1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RankSheet(context.Background(), "6", "5", "csv")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
