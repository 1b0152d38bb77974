package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/response"
)

type markService interface {
	ListForStudent(ctx context.Context, studentID, actorID string, role models.UserRole, exam string) ([]models.ScoreRecord, error)
	BulkUpsert(ctx context.Context, actorID string, req dto.BulkMarksRequest) (*models.BulkResult, error)
}

// MarkHandler exposes score entry endpoints.
type MarkHandler struct {
	marks markService
}

// NewMarkHandler constructs MarkHandler.
func NewMarkHandler(marks markService) *MarkHandler {
	return &MarkHandler{marks: marks}
}

// List godoc
// @Summary Score records of a student
// @Tags Marks
// @Produce json
// @Param id path string true "Student ID or me"
// @Param exam query string false "1, 2 or 3"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	records, err := h.marks.ListForStudent(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role, c.Query("exam"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Bulk godoc
// @Summary Save one exam's scores for a class
// @Description Entries are written independently; on partial failure the response is 502 and still carries the counts
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body dto.BulkMarksRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /marks/bulk [post]
func (h *MarkHandler) Bulk(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.BulkMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid marks payload"))
		return
	}

	result, err := h.marks.BulkUpsert(c.Request.Context(), claims.UserID, req)
	writeBulkResult(c, result, err)
}

func writeBulkResult(c *gin.Context, result *models.BulkResult, err error) {
	switch {
	case err != nil && result != nil:
		response.Partial(c, result, err)
	case err != nil:
		response.Error(c, err)
	default:
		response.JSON(c, http.StatusOK, result, nil)
	}
}
