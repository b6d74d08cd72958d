package attachments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/R3E-Network/canvas/internal/app/access"
	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/metrics"
	"github.com/R3E-Network/canvas/internal/app/services/canvases"
	"github.com/R3E-Network/canvas/internal/app/storage"
	"github.com/R3E-Network/canvas/internal/blobstore"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

const (
	typeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	typeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	typePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

	MaxLabelLength = 255
)

// AllowedTypes is the upload allow-list.
var AllowedTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"application/pdf": true,
	"text/csv":        true,
	typeXLSX:          true,
	typeDOCX:          true,
	typePPTX:          true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-.]`)

// Service stores attachment content and metadata.
type Service struct {
	attachments storage.AttachmentStore
	reviews     storage.ReviewStore
	canvases    *canvases.Service
	blobs       blobstore.Store
	maxBytes    int64
	log         *logging.Logger
}

// New creates an attachment service. maxBytes is clamped to the schema
// ceiling.
func New(attachments storage.AttachmentStore, reviews storage.ReviewStore, canvasSvc *canvases.Service, blobs blobstore.Store, maxBytes int64, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("attachments")
	}
	if maxBytes <= 0 || maxBytes > attachment.MaxSizeBytes {
		maxBytes = attachment.MaxSizeBytes
	}
	return &Service{attachments: attachments, reviews: reviews, canvases: canvasSvc, blobs: blobs, maxBytes: maxBytes, log: log}
}

// MaxBytes is the effective per-file limit.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// UploadInput is one uploaded file and its target. Exactly one of the three
// target ids must be set; CanvasID stages the file for a review that does not
// exist yet.
type UploadInput struct {
	ProofPointID    string
	MonthlyReviewID string
	CanvasID        string
	Filename        string
	ContentType     string
	Label           *string
	Content         io.Reader
}

type uploadTarget struct {
	entity   attachment.EntityType
	vbuID    string
	canvasID string
}

// Upload validates, stores and records a file.
func (s *Service) Upload(ctx context.Context, actor user.User, in UploadInput) (attachment.Attachment, error) {
	target, err := s.resolveTarget(ctx, actor, in)
	if err != nil {
		return attachment.Attachment{}, err
	}

	var label *string
	if in.Label != nil {
		l := strings.TrimSpace(*in.Label)
		if l == "" {
			return attachment.Attachment{}, apperrors.InvalidFormat("label", "must not be blank")
		}
		if len(l) > MaxLabelLength {
			return attachment.Attachment{}, apperrors.InvalidFormat("label", "must be at most 255 characters")
		}
		label = &l
	}

	if in.Content == nil {
		return attachment.Attachment{}, apperrors.Validation("file is required")
	}
	data, err := io.ReadAll(io.LimitReader(in.Content, s.maxBytes+1))
	if err != nil {
		return attachment.Attachment{}, apperrors.BadRequest("Could not read uploaded file")
	}
	if int64(len(data)) > s.maxBytes {
		return attachment.Attachment{}, apperrors.FileTooLarge(s.maxBytes)
	}
	if len(data) == 0 {
		return attachment.Attachment{}, apperrors.Validation("File is empty")
	}

	contentType, err := verifyContentType(in.ContentType, data)
	if err != nil {
		return attachment.Attachment{}, err
	}

	filename := SanitizeFilename(in.Filename)
	key := target.vbuID + "/" + string(target.entity) + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	size := int64(len(data))
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), size, contentType); err != nil {
		return attachment.Attachment{}, apperrors.Internal("Failed to store file", err)
	}

	a := attachment.Attachment{
		CanvasID:    target.canvasID,
		Filename:    filename,
		StorageKey:  key,
		ContentType: contentType,
		SizeBytes:   size,
		Label:       label,
		UploadedBy:  &actor.ID,
	}
	switch target.entity {
	case attachment.EntityProofPoint:
		a.ProofPointID = &in.ProofPointID
	case attachment.EntityMonthlyReview:
		a.MonthlyReviewID = &in.MonthlyReviewID
	}

	created, err := s.attachments.CreateAttachment(ctx, a)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.log.WithContext(ctx).WithError(delErr).WithField("key", key).Warn("remove orphaned blob")
		}
		if errors.Is(err, storage.ErrNotFound) {
			return attachment.Attachment{}, apperrors.NotFound(entityLabel(target.entity))
		}
		return attachment.Attachment{}, apperrors.Internal("", err)
	}
	metrics.RecordUpload(string(target.entity), size)
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"attachment_id": created.ID,
		"entity":        target.entity,
		"size":          size,
	}).Info("attachment uploaded")
	return created, nil
}

func (s *Service) resolveTarget(ctx context.Context, actor user.User, in UploadInput) (uploadTarget, error) {
	set := 0
	for _, id := range []string{in.ProofPointID, in.MonthlyReviewID, in.CanvasID} {
		if id != "" {
			set++
		}
	}
	if set != 1 {
		return uploadTarget{}, apperrors.Validation("Exactly one of proof_point_id, monthly_review_id or canvas_id is required")
	}

	switch {
	case in.ProofPointID != "":
		_, t, err := s.canvases.ResolveProofPoint(ctx, in.ProofPointID)
		if err != nil {
			return uploadTarget{}, err
		}
		if err := access.RequireWrite(actor, t.VBU); err != nil {
			return uploadTarget{}, err
		}
		return uploadTarget{entity: attachment.EntityProofPoint, vbuID: t.VBU.ID, canvasID: t.Canvas.ID}, nil

	case in.MonthlyReviewID != "":
		r, err := s.reviews.GetReview(ctx, in.MonthlyReviewID)
		if errors.Is(err, storage.ErrNotFound) {
			return uploadTarget{}, apperrors.NotFound("Monthly review")
		}
		if err != nil {
			return uploadTarget{}, apperrors.Internal("", err)
		}
		t, err := s.canvases.WritableCanvas(ctx, actor, r.CanvasID)
		if err != nil {
			return uploadTarget{}, err
		}
		if len(r.Attachments) >= review.MaxAttachments {
			return uploadTarget{}, apperrors.Validationf("A review may have at most %d attachments", review.MaxAttachments)
		}
		return uploadTarget{entity: attachment.EntityMonthlyReview, vbuID: t.VBU.ID, canvasID: t.Canvas.ID}, nil

	default:
		t, err := s.canvases.WritableCanvas(ctx, actor, in.CanvasID)
		if err != nil {
			return uploadTarget{}, err
		}
		return uploadTarget{entity: attachment.EntityStaged, vbuID: t.VBU.ID, canvasID: t.Canvas.ID}, nil
	}
}

// Get returns attachment metadata the actor can read.
func (s *Service) Get(ctx context.Context, actor user.User, id string) (attachment.Attachment, error) {
	a, err := s.attachments.GetAttachment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return attachment.Attachment{}, apperrors.NotFound("Attachment")
	}
	if err != nil {
		return attachment.Attachment{}, apperrors.Internal("", err)
	}
	if _, err := s.canvases.ReadableCanvas(ctx, actor, a.CanvasID); err != nil {
		return attachment.Attachment{}, err
	}
	return a, nil
}

// Open returns metadata and a reader over the stored bytes. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, actor user.User, id string) (attachment.Attachment, io.ReadCloser, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return attachment.Attachment{}, nil, err
	}
	rc, err := s.blobs.Open(ctx, a.StorageKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return attachment.Attachment{}, nil, apperrors.NotFound("File")
	}
	if err != nil {
		return attachment.Attachment{}, nil, apperrors.Internal("", err)
	}
	return a, rc, nil
}

// Delete removes the metadata row, then the stored bytes.
func (s *Service) Delete(ctx context.Context, actor user.User, id string) error {
	a, err := s.attachments.GetAttachment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("Attachment")
	}
	if err != nil {
		return apperrors.Internal("", err)
	}
	if _, err := s.canvases.WritableCanvas(ctx, actor, a.CanvasID); err != nil {
		return err
	}
	if err := s.attachments.DeleteAttachment(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("Attachment")
		}
		return apperrors.Internal("", err)
	}
	if err := s.blobs.Delete(ctx, a.StorageKey); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("key", a.StorageKey).Warn("remove attachment blob")
	}
	return nil
}

// SanitizeFilename keeps word characters, dashes and dots, and neutralises
// traversal sequences.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	safe := unsafeFilenameChars.ReplaceAllString(name, "_")
	safe = strings.ReplaceAll(safe, "..", "_")
	safe = strings.Trim(safe, ".")
	if safe == "" || safe == "_" {
		return "unnamed_file"
	}
	return safe
}

// verifyContentType checks the declared type against the allow-list and the
// sniffed bytes. An empty declaration adopts the sniffed type.
func verifyContentType(declared string, data []byte) (string, error) {
	detected := mimetype.Detect(data)
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		declared = strings.ToLower(mediaType)
	} else {
		declared = ""
	}
	if declared == "" || declared == "application/octet-stream" {
		declared = baseType(detected.String())
	}
	if !AllowedTypes[declared] {
		return "", apperrors.UnsupportedType(declared)
	}
	if !sniffMatches(declared, detected) {
		return "", apperrors.UnsupportedType(declared).
			WithDetails("detected", baseType(detected.String()))
	}
	return declared, nil
}

func sniffMatches(declared string, detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
	}
	switch declared {
	case typeXLSX, typeDOCX, typePPTX:
		return detected.Is("application/zip")
	case "text/csv":
		for m := detected; m != nil; m = m.Parent() {
			if m.Is("text/plain") {
				return true
			}
		}
	}
	return false
}

func baseType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

func entityLabel(e attachment.EntityType) string {
	switch e {
	case attachment.EntityProofPoint:
		return "Proof point"
	case attachment.EntityMonthlyReview:
		return "Monthly review"
	default:
		return "Canvas"
	}
}
