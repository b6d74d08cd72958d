package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/portfolio"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/storage"
)

func seedVBU(t *testing.T, s *Store) (user.User, vbu.VBU, canvas.Canvas) {
	t.Helper()
	ctx := context.Background()
	gm, err := s.CreateUser(ctx, user.User{Email: "gm@example.com", Name: "Grace", Role: user.RoleGM, IsActive: true})
	if err != nil {
		t.Fatalf("create gm: %v", err)
	}
	v, err := s.CreateVBU(ctx, vbu.VBU{Name: "Payments", GMID: gm.ID}, canvas.Canvas{})
	if err != nil {
		t.Fatalf("create vbu: %v", err)
	}
	c, err := s.GetCanvasByVBU(ctx, v.ID)
	if err != nil {
		t.Fatalf("get canvas: %v", err)
	}
	return gm, v, c
}

func TestCreateUserDuplicateEmailIgnoresCase(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateUser(ctx, user.User{Email: "Ada@Example.com", Name: "Ada"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateUser(ctx, user.User{Email: "ada@example.com", Name: "Other"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := s.GetUserByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Name != "Ada" {
		t.Fatalf("unexpected user %+v", got)
	}
}

func TestDeleteUserOwningVBUIsConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	gm, v, _ := seedVBU(t, s)

	leader, err := s.CreateUser(ctx, user.User{Email: "lead@example.com", Name: "Lee", Role: user.RoleGroupLeader})
	if err != nil {
		t.Fatalf("create leader: %v", err)
	}
	v.GroupLeaderID = &leader.ID
	if _, err := s.UpdateVBU(ctx, v); err != nil {
		t.Fatalf("assign leader: %v", err)
	}

	if err := s.DeleteUser(ctx, gm.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict deleting gm, got %v", err)
	}
	if err := s.DeleteUser(ctx, leader.ID); err != nil {
		t.Fatalf("delete leader: %v", err)
	}
	got, err := s.GetVBU(ctx, v.ID)
	if err != nil {
		t.Fatalf("get vbu: %v", err)
	}
	if got.GroupLeaderID != nil {
		t.Fatalf("expected group leader cleared, got %v", *got.GroupLeaderID)
	}
	if got.GMName != "Grace" {
		t.Fatalf("expected gm name decoration, got %q", got.GMName)
	}
}

func TestCreateVBUUnknownGM(t *testing.T) {
	s := New()
	if _, err := s.CreateVBU(context.Background(), vbu.VBU{Name: "X", GMID: "nobody"}, canvas.Canvas{}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteVBUCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, v, c := seedVBU(t, s)

	th, err := s.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "bet"})
	if err != nil {
		t.Fatalf("create thesis: %v", err)
	}
	pp, err := s.CreateProofPoint(ctx, canvas.ProofPoint{ThesisID: th.ID, Description: "signal"})
	if err != nil {
		t.Fatalf("create proof point: %v", err)
	}
	ppID := pp.ID
	att, err := s.CreateAttachment(ctx, attachment.Attachment{CanvasID: c.ID, ProofPointID: &ppID, Filename: "a.pdf"})
	if err != nil {
		t.Fatalf("create attachment: %v", err)
	}
	r, err := s.CreateReview(ctx, review.MonthlyReview{
		CanvasID:             c.ID,
		ReviewDate:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CurrentlyTestingType: canvas.TestingThesis,
		CurrentlyTestingID:   th.ID,
		Commitments:          []review.Commitment{{Text: "ship", Order: 1}},
	}, nil)
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	if err := s.DeleteVBU(ctx, v.ID); err != nil {
		t.Fatalf("delete vbu: %v", err)
	}
	if _, err := s.GetCanvas(ctx, c.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("canvas survived: %v", err)
	}
	if _, err := s.GetThesis(ctx, th.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("thesis survived: %v", err)
	}
	if _, err := s.GetProofPoint(ctx, pp.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("proof point survived: %v", err)
	}
	if _, err := s.GetAttachment(ctx, att.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("attachment survived: %v", err)
	}
	if _, err := s.GetReview(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("review survived: %v", err)
	}
}

func TestThesisOrderUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, c := seedVBU(t, s)

	t1, err := s.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "first"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t2, err := s.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 2, Text: "second"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 2, Text: "dup"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate order, got %v", err)
	}

	// A swap only conflicts if checked pairwise.
	if err := s.ReorderTheses(ctx, c.ID, map[string]int{t1.ID: 2, t2.ID: 1}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	list, err := s.ListTheses(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != t2.ID || list[1].ID != t1.ID {
		t.Fatalf("unexpected order after swap: %+v", list)
	}

	if err := s.ReorderTheses(ctx, c.ID, map[string]int{t1.ID: 1}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict on partial collision, got %v", err)
	}
	if err := s.ReorderTheses(ctx, c.ID, map[string]int{"foreign": 3}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign thesis, got %v", err)
	}
}

func TestDeletingTestedRecordClearsPointer(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, c := seedVBU(t, s)

	th, err := s.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "bet"})
	if err != nil {
		t.Fatalf("create thesis: %v", err)
	}
	pp, err := s.CreateProofPoint(ctx, canvas.ProofPoint{ThesisID: th.ID, Description: "signal"})
	if err != nil {
		t.Fatalf("create proof point: %v", err)
	}
	if pp.Status != canvas.StatusNotStarted {
		t.Fatalf("expected default status, got %q", pp.Status)
	}

	typ, id := canvas.TestingProofPoint, pp.ID
	if _, err := s.UpdateCanvas(ctx, storage.CanvasUpdate{CanvasID: c.ID, Testing: &storage.TestingPointer{Type: &typ, ID: &id}}); err != nil {
		t.Fatalf("update canvas: %v", err)
	}

	if err := s.DeleteThesis(ctx, th.ID); err != nil {
		t.Fatalf("delete thesis: %v", err)
	}
	got, err := s.GetCanvas(ctx, c.ID)
	if err != nil {
		t.Fatalf("get canvas: %v", err)
	}
	if got.CurrentlyTestingID != nil || got.CurrentlyTestingType != nil {
		t.Fatalf("expected testing pointer cleared, got %v/%v", got.CurrentlyTestingType, got.CurrentlyTestingID)
	}

	// Pointing at the deleted record afterwards is refused.
	if _, err := s.UpdateCanvas(ctx, storage.CanvasUpdate{CanvasID: c.ID, Testing: &storage.TestingPointer{Type: &typ, ID: &id}}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for vanished target, got %v", err)
	}
}

func TestUpdateCanvasWritesOnlyNamedColumns(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, c := seedVBU(t, s)

	th, err := s.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "bet"})
	if err != nil {
		t.Fatalf("create thesis: %v", err)
	}
	focus := "retention"
	if _, err := s.UpdateCanvas(ctx, storage.CanvasUpdate{CanvasID: c.ID, Text: map[storage.CanvasColumn]*string{storage.ColPrimaryFocus: &focus}}); err != nil {
		t.Fatalf("set focus: %v", err)
	}

	// A review sets the pointer between another writer's read and write.
	if _, err := s.CreateReview(ctx, review.MonthlyReview{
		CanvasID:             c.ID,
		ReviewDate:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CurrentlyTestingType: canvas.TestingThesis,
		CurrentlyTestingID:   th.ID,
		Commitments:          []review.Commitment{{Text: "ship", Order: 1}},
	}, nil); err != nil {
		t.Fatalf("create review: %v", err)
	}

	name, editor := "Ledger", "editor-1"
	got, err := s.UpdateCanvas(ctx, storage.CanvasUpdate{
		CanvasID:  c.ID,
		Text:      map[storage.CanvasColumn]*string{storage.ColProductName: &name, storage.ColPrimaryFocus: nil},
		UpdatedBy: &editor,
	})
	if err != nil {
		t.Fatalf("update canvas: %v", err)
	}
	if got.CurrentlyTestingID == nil || *got.CurrentlyTestingID != th.ID {
		t.Fatalf("expected pointer set by the review to survive, got %v", got.CurrentlyTestingID)
	}
	if got.ProductName == nil || *got.ProductName != "Ledger" {
		t.Fatalf("expected product name written, got %v", got.ProductName)
	}
	if got.PrimaryFocus != nil {
		t.Fatalf("expected primary focus cleared, got %v", *got.PrimaryFocus)
	}
	if got.LifecycleLane != canvas.LaneBuild {
		t.Fatalf("expected lane untouched, got %q", got.LifecycleLane)
	}
}

func TestCreateReviewClaimsStagedAttachments(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, c := seedVBU(t, s)

	th, err := s.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "bet"})
	if err != nil {
		t.Fatalf("create thesis: %v", err)
	}
	staged, err := s.CreateAttachment(ctx, attachment.Attachment{CanvasID: c.ID, Filename: "notes.pdf"})
	if err != nil {
		t.Fatalf("stage attachment: %v", err)
	}

	r := review.MonthlyReview{
		CanvasID:             c.ID,
		ReviewDate:           time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		CurrentlyTestingType: canvas.TestingThesis,
		CurrentlyTestingID:   th.ID,
		Commitments:          []review.Commitment{{Text: "second", Order: 2}, {Text: "first", Order: 1}},
	}
	created, err := s.CreateReview(ctx, r, []string{staged.ID})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if len(created.Attachments) != 1 || created.Attachments[0].Entity() != attachment.EntityMonthlyReview {
		t.Fatalf("expected claimed attachment, got %+v", created.Attachments)
	}
	if created.Commitments[0].Text != "first" {
		t.Fatalf("expected commitments sorted by order, got %+v", created.Commitments)
	}
	if _, err := s.CreateReview(ctx, r, nil); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for same review date, got %v", err)
	}

	c2, err := s.GetCanvas(ctx, c.ID)
	if err != nil {
		t.Fatalf("get canvas: %v", err)
	}
	if c2.CurrentlyTestingID == nil || *c2.CurrentlyTestingID != th.ID {
		t.Fatalf("expected canvas pointer updated, got %v", c2.CurrentlyTestingID)
	}

	summary, err := s.PortfolioSummary(ctx, portfolio.Query{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary) != 1 || summary[0].NextReviewDate == nil {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if want := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC); !summary[0].NextReviewDate.Equal(want) {
		t.Fatalf("expected clamped next review %v, got %v", want, *summary[0].NextReviewDate)
	}
	if summary[0].CurrentlyTesting == nil || *summary[0].CurrentlyTesting != "bet" {
		t.Fatalf("expected currently testing text, got %v", summary[0].CurrentlyTesting)
	}
}

func TestListVBUsPaginates(t *testing.T) {
	s := New()
	ctx := context.Background()
	gm, err := s.CreateUser(ctx, user.User{Email: "gm@example.com", Name: "Grace", Role: user.RoleGM})
	if err != nil {
		t.Fatalf("create gm: %v", err)
	}
	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		if _, err := s.CreateVBU(ctx, vbu.VBU{Name: name, GMID: gm.ID}, canvas.Canvas{}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	page, total, err := s.ListVBUs(ctx, storage.VBUFilter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].Name != "Bravo" {
		t.Fatalf("unexpected page %+v (total %d)", page, total)
	}
	page, _, err = s.ListVBUs(ctx, storage.VBUFilter{Offset: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}
}
