package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/middleware"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/response"
)

type academicService interface {
	Summary(ctx context.Context, studentID, actorID string, role models.UserRole) (*models.AcademicSummary, error)
	ClassRanking(ctx context.Context, classID, exam string) (*models.ClassRanking, error)
}

type rankSheetExporter interface {
	RankSheet(ctx context.Context, classID, exam, format string) (*dto.RankingExport, error)
}

// AcademicHandler serves exam summaries and class rankings.
type AcademicHandler struct {
	academic academicService
	exports  rankSheetExporter
}

// NewAcademicHandler constructs AcademicHandler.
func NewAcademicHandler(academic academicService, exports rankSheetExporter) *AcademicHandler {
	return &AcademicHandler{academic: academic, exports: exports}
}

// Summary godoc
// @Summary Exam summaries and overall rank of a student
// @Description Every roster member is ranked, so totalStudents always equals the class size
// @Tags Academic
// @Produce json
// @Param id path string true "Student ID or me"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/summary [get]
func (h *AcademicHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.academic.Summary(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, middleware.Meta(c))
}

// Ranking godoc
// @Summary Class board for one exam or overall
// @Tags Academic
// @Produce json
// @Param classId path string true "Class"
// @Param exam query string false "1, 2, 3 or overall"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/ranking [get]
func (h *AcademicHandler) Ranking(c *gin.Context) {
	ranking, err := h.academic.ClassRanking(c.Request.Context(), c.Param("classId"), c.Query("exam"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, ranking.Cached)
	response.JSON(c, http.StatusOK, ranking, nil, middleware.Meta(c))
}

// Export godoc
// @Summary Download a class rank sheet
// @Tags Academic
// @Produce text/csv
// @Produce application/pdf
// @Param classId path string true "Class"
// @Param exam query string false "1, 2, 3 or overall"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /classes/{classId}/ranking/export [get]
func (h *AcademicHandler) Export(c *gin.Context) {
	sheet, err := h.exports.RankSheet(c.Request.Context(), c.Param("classId"), c.Query("exam"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sheet.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, sheet.ContentType, sheet.Payload)
}
