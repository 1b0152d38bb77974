package handler

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-classroom-api/internal/dto"
	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/response"
)

type attachmentService interface {
	Upload(ctx context.Context, uploaderID, fileName string, r io.Reader) (*models.Attachment, error)
	ViewURL(ctx context.Context, ref, variant string) (string, time.Time, error)
	Open(ctx context.Context, token string) (*os.File, string, error)
}

// AttachmentHandler uploads chat attachments and serves them through signed links.
type AttachmentHandler struct {
	attachments attachmentService
}

// NewAttachmentHandler constructs AttachmentHandler.
func NewAttachmentHandler(attachments attachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload godoc
// @Summary Upload a chat attachment
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read upload"))
		return
	}
	defer file.Close()

	attachment, err := h.attachments.Upload(c.Request.Context(), claims.UserID, header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// URL godoc
// @Summary Signed view URL for an attachment
// @Tags Attachments
// @Produce json
// @Param ref path string true "Attachment reference"
// @Param variant query string false "original or preview"
// @Success 200 {object} response.Envelope
// @Router /attachments/{ref}/url [get]
func (h *AttachmentHandler) URL(c *gin.Context) {
	url, expiresAt, err := h.attachments.ViewURL(c.Request.Context(), c.Param("ref"), c.Query("variant"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AttachmentURLResponse{URL: url, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)}, nil)
}

// Serve streams the file behind a signed token. The token is the credential, so
// the route sits outside the JWT group.
func (h *AttachmentHandler) Serve(c *gin.Context) {
	file, contentType, err := h.attachments.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	modTime := time.Time{}
	if info, err := file.Stat(); err == nil {
		modTime = info.ModTime()
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, "", modTime, file)
}
