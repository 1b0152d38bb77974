package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/response"
)

// ClassHandler serves the fixed class and subject catalogue.
type ClassHandler struct{}

// NewClassHandler constructs ClassHandler.
func NewClassHandler() *ClassHandler {
	return &ClassHandler{}
}

// List returns the known class labels.
func (h *ClassHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, models.Classes(), nil)
}

// Subjects godoc
// @Summary Subjects taught in a class
// @Tags Classes
// @Produce json
// @Param classId path string true "Class"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/subjects [get]
func (h *ClassHandler) Subjects(c *gin.Context) {
	classID := c.Param("classId")
	if !models.KnownClass(classID) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown class"))
		return
	}
	response.JSON(c, http.StatusOK, models.ClassSubjects{ClassID: classID, Subjects: models.SubjectsForClass(classID)}, nil)
}
