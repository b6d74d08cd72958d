package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/portfolio"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/storage"
	"github.com/R3E-Network/canvas/internal/platform/migrations"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetUserNotFoundMapsSentinel(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetUser(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateUserDuplicateEmailIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "users_email_key"})

	_, err := store.CreateUser(context.Background(), user.User{Email: "A@B.com", Name: "A", PasswordHash: "x", Role: user.RoleViewer})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeleteUserStillOwningVBUIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("gm-1").
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation, Constraint: "vbus_gm_id_fkey"})

	if err := store.DeleteUser(context.Background(), "gm-1"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateVBUWritesCanvasInSameTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vbus").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO canvases").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "gm_id", "gm_name", "group_leader_id", "updated_by", "created_at", "updated_at"}).
		AddRow("vbu-1", "Payments", "gm-1", "Grace", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE v.id = $1")).WillReturnRows(rows)

	got, err := store.CreateVBU(context.Background(), vbu.VBU{ID: "vbu-1", Name: "Payments", GMID: "gm-1"}, canvas.Canvas{})
	if err != nil {
		t.Fatalf("create vbu: %v", err)
	}
	if got.GMName != "Grace" {
		t.Fatalf("expected gm name to be joined, got %q", got.GMName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateVBUUnknownGMRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vbus").WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
	mock.ExpectRollback()

	_, err := store.CreateVBU(context.Background(), vbu.VBU{Name: "X", GMID: "nobody"}, canvas.Canvas{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReorderThesesDefersUniqueness(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET CONSTRAINTS uq_theses_canvas_order DEFERRED")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE theses SET "order" = $1`)).
		WithArgs(2, sqlmock.AnyArg(), "t-1", "canvas-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ReorderTheses(context.Background(), "canvas-1", map[string]int{"t-1": 2}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReorderThesesForeignThesisRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET CONSTRAINTS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE theses").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ReorderTheses(context.Background(), "canvas-1", map[string]int{"other": 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func canvasRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "vbu_id", "product_name", "lifecycle_lane", "success_description",
		"future_state_intent", "primary_focus", "resist_doing", "good_discipline", "primary_constraint",
		"currently_testing_type", "currently_testing_id", "portfolio_notes", "health_indicator_cache",
		"health_computed_at", "updated_by", "created_at", "updated_at"}).
		AddRow(id, "vbu-1", "Ledger", "build", nil, nil, nil, nil, nil, nil, "thesis", "t-1", nil, nil, nil, "u-1", now, now)
}

func TestUpdateCanvasSetsOnlyPatchedColumns(t *testing.T) {
	store, mock := newMockStore(t)

	name, editor := "Ledger", "u-1"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE canvases SET updated_at = $2, product_name = $3, primary_focus = $4, updated_by = $5 WHERE id = $1 RETURNING")).
		WithArgs("canvas-1", sqlmock.AnyArg(), &name, nil, &editor).
		WillReturnRows(canvasRows("canvas-1"))
	mock.ExpectCommit()

	got, err := store.UpdateCanvas(context.Background(), storage.CanvasUpdate{
		CanvasID:  "canvas-1",
		Text:      map[storage.CanvasColumn]*string{storage.ColProductName: &name, storage.ColPrimaryFocus: nil},
		UpdatedBy: &editor,
	})
	if err != nil {
		t.Fatalf("update canvas: %v", err)
	}
	if got.CurrentlyTestingID == nil || *got.CurrentlyTestingID != "t-1" {
		t.Fatalf("expected stored pointer returned, got %v", got.CurrentlyTestingID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateCanvasVanishedTestingTargetIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	typ, id := canvas.TestingThesis, "t-9"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM theses t WHERE t.id = $1 AND t.canvas_id = $2 FOR SHARE")).
		WithArgs("t-9", "canvas-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.UpdateCanvas(context.Background(), storage.CanvasUpdate{
		CanvasID: "canvas-1",
		Testing:  &storage.TestingPointer{Type: &typ, ID: &id},
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateReviewRollsBackWhenAttachmentNotStaged(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO monthly_reviews").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO commitments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE attachments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	r := review.MonthlyReview{
		CanvasID:             "canvas-1",
		ReviewDate:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CurrentlyTestingType: canvas.TestingThesis,
		CurrentlyTestingID:   "t-1",
		Commitments:          []review.Commitment{{Text: "ship", Order: 1}},
	}
	_, err := store.CreateReview(context.Background(), r, []string{"att-1"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPortfolioSummaryFilters(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"id", "name", "gm_id", "gm_name", "lifecycle_lane", "success_description", "currently_testing",
		"next_review_date", "primary_constraint", "health_indicator", "portfolio_notes"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE v.gm_id = $1 AND c.lifecycle_lane = ANY($2) AND COALESCE(c.health_indicator_cache, 'Not Started') = ANY($3)")).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("v1", "Alpha", "gm-1", "Grace", "build", nil, nil, nil, nil, "Not Started", nil))

	got, err := store.PortfolioSummary(context.Background(), portfolio.Query{
		Filters: portfolio.Filters{
			Lanes:          []canvas.LifecycleLane{canvas.LaneBuild, canvas.LaneSell},
			HealthStatuses: []canvas.Health{canvas.HealthNotStarted},
		},
		ScopeGMID: "gm-1",
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(got) != 1 || got[0].HealthIndicator != canvas.HealthNotStarted {
		t.Fatalf("unexpected summary %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	store := New(db)

	gm, err := store.CreateUser(ctx, user.User{Email: "gm-" + time.Now().Format("150405.000000") + "@example.com", Name: "GM", PasswordHash: "x", Role: user.RoleGM, IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	v, err := store.CreateVBU(ctx, vbu.VBU{Name: "Integration", GMID: gm.ID}, canvas.Canvas{})
	if err != nil {
		t.Fatalf("create vbu: %v", err)
	}
	c, err := store.GetCanvasByVBU(ctx, v.ID)
	if err != nil {
		t.Fatalf("get canvas: %v", err)
	}

	t1, err := store.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "first"})
	if err != nil {
		t.Fatalf("create thesis: %v", err)
	}
	t2, err := store.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 2, Text: "second"})
	if err != nil {
		t.Fatalf("create thesis: %v", err)
	}
	if err := store.ReorderTheses(ctx, c.ID, map[string]int{t1.ID: 2, t2.ID: 1}); err != nil {
		t.Fatalf("swap orders: %v", err)
	}

	if err := store.DeleteVBU(ctx, v.ID); err != nil {
		t.Fatalf("delete vbu: %v", err)
	}
	if _, err := store.GetCanvas(ctx, c.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected canvas cascade, got %v", err)
	}
}
