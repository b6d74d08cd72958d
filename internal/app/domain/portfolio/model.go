package portfolio

import (
	"time"

	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
)

// Summary is one VBU row of the portfolio dashboard.
type Summary struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	GMID               string               `json:"gm_id"`
	GMName             string               `json:"gm_name"`
	LifecycleLane      canvas.LifecycleLane `json:"lifecycle_lane"`
	SuccessDescription *string              `json:"success_description"`
	CurrentlyTesting   *string              `json:"currently_testing"`
	NextReviewDate     *time.Time           `json:"next_review_date"`
	PrimaryConstraint  *string              `json:"primary_constraint"`
	HealthIndicator    canvas.Health        `json:"health_indicator"`
	PortfolioNotes     *string              `json:"portfolio_notes"`
}

// Filters narrow the summary. Values inside one filter are OR-ed; filters are
// AND-ed together.
type Filters struct {
	Lanes          []canvas.LifecycleLane
	GMIDs          []string
	HealthStatuses []canvas.Health
}

// Query is Filters plus the caller's visibility scope.
type Query struct {
	Filters
	ScopeGMID          string
	ScopeGroupLeaderID string
	ScopeVBUID         string
}

// Notes is the single portfolio-wide notes record.
type Notes struct {
	Notes     *string    `json:"notes"`
	UpdatedBy *string    `json:"updated_by"`
	UpdatedAt *time.Time `json:"updated_at"`
}

const MaxNotesLen = 10000
