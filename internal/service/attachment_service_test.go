package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/jobs"
	"github.com/noah-isme/sma-classroom-api/pkg/storage"
)

type recordingScheduler struct {
	jobs []jobs.Job
	err  error
}

func (r *recordingScheduler) TryEnqueue(job jobs.Job) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestAttachmentService(t *testing.T, cfg AttachmentConfig) (*AttachmentService, *storage.LocalStorage, *MetricsService) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	metrics := NewMetricsService()
	return NewAttachmentService(store, storage.NewSignedURLSigner("secret", time.Minute), metrics, nil, cfg), store, metrics
}

func TestAttachmentServiceUploadImageRendersPreview(t *testing.T) {
	svc, store, metrics := newTestAttachmentService(t, AttachmentConfig{PreviewSize: 16, FilesPath: "/api/v1/files"})

	attachment, err := svc.Upload(context.Background(), "user-1", "../../photo.png", bytes.NewReader(pngBytes(t, 64, 32)))
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentImage, attachment.Kind)
	assert.Equal(t, "image/png", attachment.ContentType)
	assert.Equal(t, "photo.png", attachment.FileName)
	assert.True(t, strings.HasSuffix(attachment.Ref, ".png"))
	assert.True(t, store.Exists("chat-attachments", previewKey(attachment.Ref)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.previewJobs.WithLabelValues("ok")))

	url, expiresAt, err := svc.ViewURL(context.Background(), attachment.Ref, VariantPreview)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/api/v1/files/"))
	assert.True(t, expiresAt.After(time.Now()))

	file, contentType, err := svc.Open(context.Background(), strings.TrimPrefix(url, "/api/v1/files/"))
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "image/jpeg", contentType)

	decoded, _, err := image.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())
	assert.Equal(t, 8, decoded.Bounds().Dy())
}

func TestAttachmentServiceQueuesPreviews(t *testing.T) {
	svc, _, _ := newTestAttachmentService(t, AttachmentConfig{})
	scheduler := &recordingScheduler{}
	svc.UsePreviewQueue(scheduler)

	attachment, err := svc.Upload(context.Background(), "user-1", "a.png", bytes.NewReader(pngBytes(t, 4, 4)))
	require.NoError(t, err)
	require.Len(t, scheduler.jobs, 1)
	assert.Equal(t, attachment.Ref, scheduler.jobs[0].Payload)

	url, _, err := svc.ViewURL(context.Background(), attachment.Ref, VariantPreview)
	require.NoError(t, err)
	file, contentType, err := svc.Open(context.Background(), strings.TrimPrefix(url, "/files/"))
	require.NoError(t, err)
	file.Close()
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, svc.PreviewJobHandler()(context.Background(), scheduler.jobs[0]))
}

func TestAttachmentServiceUploadFileKindAndLimits(t *testing.T) {
	svc, _, _ := newTestAttachmentService(t, AttachmentConfig{MaxFileSize: 64, AllowedMIMEs: []string{"text/plain", "image/png"}})

	attachment, err := svc.Upload(context.Background(), "user-1", "notes.txt", strings.NewReader("homework for tomorrow"))
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentFile, attachment.Kind)

	_, err = svc.Upload(context.Background(), "user-1", "big.txt", strings.NewReader(strings.Repeat("x", 65)))
	assert.ErrorIs(t, err, appErrors.ErrPayloadTooLarge)

	_, err = svc.Upload(context.Background(), "user-1", "empty.txt", strings.NewReader(""))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Upload(context.Background(), "user-1", "doc.pdf", strings.NewReader("%PDF-1.4\n%âãÏÓ\n"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAttachmentServiceViewURLValidation(t *testing.T) {
	svc, _, _ := newTestAttachmentService(t, AttachmentConfig{})

	_, _, err := svc.ViewURL(context.Background(), "../etc/passwd", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = svc.ViewURL(context.Background(), "missing.png", "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, _, err = svc.ViewURL(context.Background(), "missing.png", "huge")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = svc.Open(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAttachmentPreviewJobSkipsBadPayload(t *testing.T) {
	svc, _, metrics := newTestAttachmentService(t, AttachmentConfig{})
	require.NoError(t, svc.PreviewJobHandler()(context.Background(), jobs.Job{Payload: 42}))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.previewJobs.WithLabelValues("skipped")))

	err := svc.RenderPreview(context.Background(), "absent.png")
	assert.Error(t, err)
}
