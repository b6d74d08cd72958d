package attachment

import "time"

// EntityType is the kind of record an attachment hangs off. Staged
// attachments belong to a canvas until a monthly review claims them.
type EntityType string

const (
	EntityProofPoint    EntityType = "proof_point"
	EntityMonthlyReview EntityType = "monthly_review"
	EntityStaged        EntityType = "staged"
)

// MaxSizeBytes is the hard ceiling enforced by the schema.
const MaxSizeBytes = 10 * 1024 * 1024

// Attachment is file metadata; the bytes live in a blob store under
// StorageKey.
type Attachment struct {
	ID              string    `json:"id"`
	CanvasID        string    `json:"canvas_id"`
	ProofPointID    *string   `json:"proof_point_id"`
	MonthlyReviewID *string   `json:"monthly_review_id"`
	Filename        string    `json:"filename"`
	StorageKey      string    `json:"-"`
	ContentType     string    `json:"content_type"`
	SizeBytes       int64     `json:"size_bytes"`
	Label           *string   `json:"label"`
	UploadedBy      *string   `json:"uploaded_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// Entity reports which parent the attachment currently belongs to.
func (a Attachment) Entity() EntityType {
	switch {
	case a.ProofPointID != nil:
		return EntityProofPoint
	case a.MonthlyReviewID != nil:
		return EntityMonthlyReview
	default:
		return EntityStaged
	}
}
