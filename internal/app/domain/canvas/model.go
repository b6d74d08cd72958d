package canvas

import "time"

// LifecycleLane places a VBU in the portfolio lifecycle.
type LifecycleLane string

const (
	LaneBuild   LifecycleLane = "build"
	LaneSell    LifecycleLane = "sell"
	LaneMilk    LifecycleLane = "milk"
	LaneReframe LifecycleLane = "reframe"
)

var Lanes = []LifecycleLane{LaneBuild, LaneSell, LaneMilk, LaneReframe}

func (l LifecycleLane) Valid() bool {
	for _, lane := range Lanes {
		if lane == l {
			return true
		}
	}
	return false
}

// TestingType names what a canvas's currently_testing pointer refers to.
type TestingType string

const (
	TestingThesis     TestingType = "thesis"
	TestingProofPoint TestingType = "proof_point"
)

func (t TestingType) Valid() bool {
	return t == TestingThesis || t == TestingProofPoint
}

// Canvas is the one-per-VBU strategy document.
type Canvas struct {
	ID                   string        `json:"id"`
	VBUID                string        `json:"vbu_id"`
	ProductName          *string       `json:"product_name"`
	LifecycleLane        LifecycleLane `json:"lifecycle_lane"`
	SuccessDescription   *string       `json:"success_description"`
	FutureStateIntent    *string       `json:"future_state_intent"`
	PrimaryFocus         *string       `json:"primary_focus"`
	ResistDoing          *string       `json:"resist_doing"`
	GoodDiscipline       *string       `json:"good_discipline"`
	PrimaryConstraint    *string       `json:"primary_constraint"`
	CurrentlyTestingType *TestingType  `json:"currently_testing_type"`
	CurrentlyTestingID   *string       `json:"currently_testing_id"`
	PortfolioNotes       *string       `json:"portfolio_notes"`
	HealthIndicator      *Health       `json:"health_indicator_cache"`
	HealthComputedAt     *time.Time    `json:"health_computed_at"`
	UpdatedBy            *string       `json:"updated_by"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	Theses               []Thesis      `json:"theses"`
}

// EffectiveHealth treats an uncomputed cache as HealthNotStarted.
func (c Canvas) EffectiveHealth() Health {
	if c.HealthIndicator == nil {
		return HealthNotStarted
	}
	return *c.HealthIndicator
}

// MaxTheses caps theses per canvas; orders run 1..MaxTheses.
const MaxTheses = 5

// Thesis is a ranked strategic bet on a canvas.
type Thesis struct {
	ID            string       `json:"id"`
	CanvasID      string       `json:"canvas_id"`
	Order         int          `json:"order"`
	Text          string       `json:"text"`
	Description   *string      `json:"description"`
	CategoryID    *string      `json:"category_id"`
	CategoryName  *string      `json:"category_name"`
	CategoryColor *string      `json:"category_color"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	ProofPoints   []ProofPoint `json:"proof_points"`
}

// Category groups theses; Color is the badge background and TextColor the
// foreground.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	TextColor   string `json:"text_color"`
}

// ProofPointStatus tracks a proof point's evidence.
type ProofPointStatus string

const (
	StatusNotStarted  ProofPointStatus = "not_started"
	StatusInProgress  ProofPointStatus = "in_progress"
	StatusObserved    ProofPointStatus = "observed"
	StatusNotObserved ProofPointStatus = "not_observed"
	StatusStalled     ProofPointStatus = "stalled"
)

var Statuses = []ProofPointStatus{StatusNotStarted, StatusInProgress, StatusObserved, StatusNotObserved, StatusStalled}

func (s ProofPointStatus) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Score is 1 for observed, 0 for not observed and nil otherwise.
func (s ProofPointStatus) Score() *int {
	switch s {
	case StatusObserved:
		one := 1
		return &one
	case StatusNotObserved:
		zero := 0
		return &zero
	default:
		return nil
	}
}

// ProofPoint is observable evidence for a thesis. TargetReviewMonth is the
// first day of the target month.
type ProofPoint struct {
	ID                string           `json:"id"`
	ThesisID          string           `json:"thesis_id"`
	Description       string           `json:"description"`
	Notes             *string          `json:"notes"`
	Status            ProofPointStatus `json:"status"`
	EvidenceNote      *string          `json:"evidence_note"`
	TargetReviewMonth *time.Time       `json:"target_review_month"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Attachments       []AttachmentRef  `json:"attachments"`
}

// AttachmentRef is the attachment summary nested under a proof point.
type AttachmentRef struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Label       *string   `json:"label"`
	CreatedAt   time.Time `json:"created_at"`
}
