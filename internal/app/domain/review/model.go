package review

import (
	"time"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
)

const (
	MaxCommitments   = 3
	MaxAttachments   = 10
	MaxNarrativeLen  = 5000
	MaxCommitmentLen = 1000
)

// MonthlyReview is a dated check-in on a canvas. At most one per canvas per
// review date.
type MonthlyReview struct {
	ID                   string                  `json:"id"`
	CanvasID             string                  `json:"canvas_id"`
	ReviewDate           time.Time               `json:"review_date"`
	WhatMoved            *string                 `json:"what_moved"`
	WhatLearned          *string                 `json:"what_learned"`
	WhatThreatens        *string                 `json:"what_threatens"`
	CurrentlyTestingType canvas.TestingType      `json:"currently_testing_type"`
	CurrentlyTestingID   string                  `json:"currently_testing_id"`
	CreatedBy            *string                 `json:"created_by"`
	CreatedAt            time.Time               `json:"created_at"`
	Commitments          []Commitment            `json:"commitments"`
	Attachments          []attachment.Attachment `json:"attachments"`
}

// Commitment is a numbered promise recorded with a review.
type Commitment struct {
	ID              string    `json:"id"`
	MonthlyReviewID string    `json:"monthly_review_id"`
	Text            string    `json:"text"`
	Order           int       `json:"order"`
	CreatedAt       time.Time `json:"created_at"`
}
