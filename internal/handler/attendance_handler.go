package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/response"
)

type attendanceService interface {
	ListYear(ctx context.Context, studentID, actorID string, role models.UserRole, year int) (*dto.AttendanceYearResponse, error)
	BulkUpsert(ctx context.Context, teacherID string, req dto.BulkAttendanceRequest) (*models.BulkResult, error)
}

// AttendanceHandler exposes monthly attendance endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary Monthly attendance of a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID or me"
// @Param year query int false "Year, defaults to the current one"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	year := 0
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year must be a number"))
			return
		}
		year = parsed
	}

	res, err := h.attendance.ListYear(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Bulk godoc
// @Summary Save one month of attendance for many students
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.BulkAttendanceRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) Bulk(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.BulkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}

	result, err := h.attendance.BulkUpsert(c.Request.Context(), claims.UserID, req)
	writeBulkResult(c, result, err)
}
