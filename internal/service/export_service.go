package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/export"
)

type classRanker interface {
	ClassRanking(ctx context.Context, classID, exam string) (*models.ClassRanking, error)
}

// ExportService renders class rank sheets.
type ExportService struct {
	ranker    classRanker
	renderers map[string]export.Renderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(ranker classRanker, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		ranker: ranker,
		renderers: map[string]export.Renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		logger: logger,
	}
}

// RankSheet renders the board of a class for exam "1", "2", "3" or "overall".
func (s *ExportService) RankSheet(ctx context.Context, classID, exam, format string) (*dto.RankingExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	ranking, err := s.ranker.ClassRanking(ctx, classID, exam)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(rankDataset(ranking))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render rank sheet")
	}
	s.logger.Info("rank sheet exported",
		zap.String("class_id", classID),
		zap.String("exam", ranking.Exam),
		zap.String("format", format),
		zap.Int("rows", len(ranking.Entries)))

	return &dto.RankingExport{
		FileName:    fmt.Sprintf("ranking-class-%s-exam-%s.%s", ranking.ClassID, ranking.Exam, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

func rankDataset(ranking *models.ClassRanking) export.Dataset {
	title := fmt.Sprintf("Class %s ranking", ranking.ClassID)
	if ranking.Exam == ExamOverall {
		title += ", all exams"
	} else {
		title += ", exam " + ranking.Exam
	}

	data := export.Dataset{
		Title:    title,
		Subtitle: fmt.Sprintf("%d students", ranking.TotalStudents),
		Headers:  []string{"Rank", "Roll", "Name", "Total", "Status"},
		Rows:     make([][]string, 0, len(ranking.Entries)),
	}
	if len(ranking.Warnings) > 0 {
		data.Subtitle += "; incomplete: " + strings.Join(ranking.Warnings, "; ")
	}
	for _, entry := range ranking.Entries {
		status := "Ranked"
		if !entry.HasData {
			status = "Pending"
		}
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(entry.Rank),
			strconv.Itoa(entry.Roll),
			entry.FullName,
			strconv.FormatFloat(entry.Total, 'f', -1, 64),
			status,
		})
	}
	return data
}
