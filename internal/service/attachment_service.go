package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
	"github.com/noah-isme/sma-classroom-api/pkg/jobs"
	"github.com/noah-isme/sma-classroom-api/pkg/storage"
)

// Attachment view variants.
const (
	VariantOriginal = "original"
	VariantPreview  = "preview"

	previewJobType = "attachment_preview"
	// sniffLen matches mimetype's default read limit.
	sniffLen = 3072
)

type objectStore interface {
	Save(bucket, key string, data []byte) error
	SaveStream(bucket, key string, r io.Reader) (int64, error)
	Delete(bucket, key string) error
	Open(bucket, key string) (*os.File, error)
	Exists(bucket, key string) bool
}

type urlSigner interface {
	Generate(bucket, key string) (string, time.Time, error)
	Parse(token string) (string, string, time.Time, error)
}

type previewScheduler interface {
	TryEnqueue(job jobs.Job) error
}

// AttachmentConfig controls uploads and previews.
type AttachmentConfig struct {
	Bucket       string
	MaxFileSize  int64
	AllowedMIMEs []string
	PreviewSize  int
	// FilesPath is the route prefix signed tokens are served under.
	FilesPath string
}

// AttachmentService is the object store behind chat attachments.
type AttachmentService struct {
	store   objectStore
	signer  urlSigner
	queue   previewScheduler
	metrics *MetricsService
	logger  *zap.Logger
	cfg     AttachmentConfig
}

// NewAttachmentService constructs the attachment service. Without a queue previews are rendered inline.
func NewAttachmentService(store objectStore, signer urlSigner, metrics *MetricsService, logger *zap.Logger, cfg AttachmentConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "chat-attachments"
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = 320
	}
	if cfg.FilesPath == "" {
		cfg.FilesPath = "/files"
	}
	return &AttachmentService{store: store, signer: signer, metrics: metrics, logger: logger, cfg: cfg}
}

// UsePreviewQueue routes preview rendering through a background queue.
func (s *AttachmentService) UsePreviewQueue(queue previewScheduler) {
	s.queue = queue
}

// Upload streams the file to the store and returns its reference. The MIME type is
// sniffed from the leading bytes, never taken from the client.
func (s *AttachmentService) Upload(ctx context.Context, uploaderID, fileName string, r io.Reader) (*models.Attachment, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	head = head[:n]
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}

	mt := mimetype.Detect(head)
	if !s.allowed(mt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", mt.String()))
	}

	ref := uuid.NewString() + mt.Extension()
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.cfg.MaxFileSize+1)
	size, err := s.store.SaveStream(s.cfg.Bucket, ref, body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	if size > s.cfg.MaxFileSize {
		if err := s.store.Delete(s.cfg.Bucket, ref); err != nil {
			s.logger.Warn("failed to remove oversized attachment", zap.String("ref", ref), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize))
	}

	attachment := &models.Attachment{
		Ref:         ref,
		Bucket:      s.cfg.Bucket,
		Kind:        kindOf(mt),
		ContentType: mt.String(),
		Size:        size,
		FileName:    path.Base(fileName),
	}
	s.logger.Info("attachment stored",
		zap.String("ref", ref),
		zap.String("uploader_id", uploaderID),
		zap.String("content_type", attachment.ContentType),
		zap.Int64("size", attachment.Size))

	if attachment.Kind == models.AttachmentImage {
		s.schedulePreview(ctx, ref)
	}
	return attachment, nil
}

// ViewURL returns a signed, time-limited URL for an attachment. The preview variant
// falls back to the original until the preview has been rendered.
func (s *AttachmentService) ViewURL(ctx context.Context, ref, variant string) (string, time.Time, error) {
	if !validRef(ref) {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid attachment reference")
	}
	key := ref
	switch variant {
	case "", VariantOriginal:
	case VariantPreview:
		if preview := previewKey(ref); s.store.Exists(s.cfg.Bucket, preview) {
			key = preview
		}
	default:
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "variant must be original or preview")
	}
	if !s.store.Exists(s.cfg.Bucket, key) {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}

	token, expiresAt, err := s.signer.Generate(s.cfg.Bucket, key)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign attachment url")
	}
	return strings.TrimSuffix(s.cfg.FilesPath, "/") + "/" + token, expiresAt, nil
}

// Open resolves a signed token to the stored file and its sniffed content type.
// The caller closes the file.
func (s *AttachmentService) Open(ctx context.Context, token string) (*os.File, string, error) {
	bucket, key, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid link")
	}
	file, err := s.store.Open(bucket, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment")
	}
	mt, err := mimetype.DetectReader(file)
	if err == nil {
		_, err = file.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = file.Close()
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attachment")
	}
	return file, mt.String(), nil
}

// RenderPreview writes a JPEG thumbnail that fits in PreviewSize on both sides.
func (s *AttachmentService) RenderPreview(ctx context.Context, ref string) error {
	file, err := s.store.Open(s.cfg.Bucket, ref)
	if err != nil {
		return fmt.Errorf("open original: %w", err)
	}
	defer file.Close() //nolint:errcheck

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, s.cfg.PreviewSize, s.cfg.PreviewSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	if err := s.store.Save(s.cfg.Bucket, previewKey(ref), buf.Bytes()); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}

// PreviewJobHandler adapts RenderPreview to the background queue.
func (s *AttachmentService) PreviewJobHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		ref, ok := job.Payload.(string)
		if !ok {
			s.metrics.IncPreviewJob("skipped")
			return nil
		}
		if err := s.RenderPreview(ctx, ref); err != nil {
			s.metrics.IncPreviewJob("failed")
			return err
		}
		s.metrics.IncPreviewJob("ok")
		return nil
	}
}

func (s *AttachmentService) schedulePreview(ctx context.Context, ref string) {
	if s.queue == nil {
		if err := s.PreviewJobHandler()(ctx, jobs.Job{ID: ref, Type: previewJobType, Payload: ref}); err != nil {
			s.logger.Warn("preview render failed", zap.String("ref", ref), zap.Error(err))
		}
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: ref, Type: previewJobType, Payload: ref}); err != nil {
		s.metrics.IncPreviewJob("skipped")
		s.logger.Warn("preview not scheduled", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *AttachmentService) allowed(mt *mimetype.MIME) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for m := mt; m != nil; m = m.Parent() {
		if mimetype.EqualsAny(m.String(), s.cfg.AllowedMIMEs...) {
			return true
		}
	}
	return false
}

func kindOf(mt *mimetype.MIME) models.AttachmentKind {
	if strings.HasPrefix(mt.String(), "image/") {
		return models.AttachmentImage
	}
	return models.AttachmentFile
}

func previewKey(ref string) string {
	return "previews/" + strings.TrimSuffix(ref, path.Ext(ref)) + ".jpg"
}

func validRef(ref string) bool {
	return ref != "" && !strings.ContainsAny(ref, `/\`) && !strings.HasPrefix(ref, ".")
}
