package storage

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/portfolio"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a write violates a uniqueness or
	// referential constraint.
	ErrConflict = errors.New("storage: conflict")
)

// UserStore persists users. CreateUser returns ErrConflict for a duplicate
// email; DeleteUser returns ErrConflict while the user still owns a VBU.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// VBUFilter scopes a VBU listing. Empty fields do not filter.
type VBUFilter struct {
	GMID          string
	GroupLeaderID string
	VBUID         string
	Offset        int
	Limit         int
}

// VBUStore persists VBUs. CreateVBU writes the VBU and its canvas atomically.
// DeleteVBU cascades to everything under the canvas.
type VBUStore interface {
	CreateVBU(ctx context.Context, v vbu.VBU, c canvas.Canvas) (vbu.VBU, error)
	UpdateVBU(ctx context.Context, v vbu.VBU) (vbu.VBU, error)
	GetVBU(ctx context.Context, id string) (vbu.VBU, error)
	ListVBUs(ctx context.Context, filter VBUFilter) ([]vbu.VBU, int, error)
	DeleteVBU(ctx context.Context, id string) error
}

// CanvasColumn is a canvas text column a patch may write.
type CanvasColumn string

const (
	ColProductName        CanvasColumn = "product_name"
	ColLifecycleLane      CanvasColumn = "lifecycle_lane"
	ColSuccessDescription CanvasColumn = "success_description"
	ColFutureStateIntent  CanvasColumn = "future_state_intent"
	ColPrimaryFocus       CanvasColumn = "primary_focus"
	ColResistDoing        CanvasColumn = "resist_doing"
	ColGoodDiscipline     CanvasColumn = "good_discipline"
	ColPrimaryConstraint  CanvasColumn = "primary_constraint"
	ColPortfolioNotes     CanvasColumn = "portfolio_notes"
)

// CanvasUpdate writes only the columns it names; everything else on the row
// is left as stored. A nil entry in Text stores NULL.
type CanvasUpdate struct {
	CanvasID string
	Text     map[CanvasColumn]*string
	// Testing, when set, replaces both currently-testing columns. A pointer
	// with nil Type and ID clears them. A target that no longer belongs to
	// the canvas yields ErrConflict.
	Testing   *TestingPointer
	UpdatedBy *string
}

// TestingPointer is the canvas's currently-testing reference.
type TestingPointer struct {
	Type *canvas.TestingType
	ID   *string
}

// CanvasStore persists canvases, thesis categories, theses and proof points.
type CanvasStore interface {
	GetCanvas(ctx context.Context, id string) (canvas.Canvas, error)
	GetCanvasByVBU(ctx context.Context, vbuID string) (canvas.Canvas, error)
	UpdateCanvas(ctx context.Context, u CanvasUpdate) (canvas.Canvas, error)
	ListCanvasIDs(ctx context.Context) ([]string, error)
	SetCanvasHealth(ctx context.Context, canvasID string, health canvas.Health, computedAt time.Time) error

	ListCategories(ctx context.Context) ([]canvas.Category, error)
	GetCategory(ctx context.Context, id string) (canvas.Category, error)

	CreateThesis(ctx context.Context, t canvas.Thesis) (canvas.Thesis, error)
	UpdateThesis(ctx context.Context, t canvas.Thesis) (canvas.Thesis, error)
	GetThesis(ctx context.Context, id string) (canvas.Thesis, error)
	ListTheses(ctx context.Context, canvasID string) ([]canvas.Thesis, error)
	DeleteThesis(ctx context.Context, id string) error
	ReorderTheses(ctx context.Context, canvasID string, orders map[string]int) error

	CreateProofPoint(ctx context.Context, pp canvas.ProofPoint) (canvas.ProofPoint, error)
	UpdateProofPoint(ctx context.Context, pp canvas.ProofPoint) (canvas.ProofPoint, error)
	GetProofPoint(ctx context.Context, id string) (canvas.ProofPoint, error)
	ListProofPoints(ctx context.Context, thesisID string) ([]canvas.ProofPoint, error)
	ListProofPointsByCanvas(ctx context.Context, canvasID string) ([]canvas.ProofPoint, error)
	DeleteProofPoint(ctx context.Context, id string) error
}

// AttachmentStore persists attachment metadata.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, a attachment.Attachment) (attachment.Attachment, error)
	GetAttachment(ctx context.Context, id string) (attachment.Attachment, error)
	ListAttachmentsByCanvas(ctx context.Context, canvasID string) ([]attachment.Attachment, error)
	ListAttachmentsByReview(ctx context.Context, reviewID string) ([]attachment.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}

// ReviewStore persists monthly reviews. CreateReview inserts the review and
// its commitments, claims the staged attachments and updates the canvas's
// currently-testing pointer in one transaction; ErrConflict signals a
// duplicate review date.
type ReviewStore interface {
	CreateReview(ctx context.Context, r review.MonthlyReview, attachmentIDs []string) (review.MonthlyReview, error)
	GetReview(ctx context.Context, id string) (review.MonthlyReview, error)
	ListReviews(ctx context.Context, canvasID string) ([]review.MonthlyReview, error)
}

// PortfolioStore serves the cross-VBU summary and portfolio notes.
type PortfolioStore interface {
	PortfolioSummary(ctx context.Context, q portfolio.Query) ([]portfolio.Summary, error)
	GetPortfolioNotes(ctx context.Context) (portfolio.Notes, error)
	UpdatePortfolioNotes(ctx context.Context, notes portfolio.Notes) (portfolio.Notes, error)
}
