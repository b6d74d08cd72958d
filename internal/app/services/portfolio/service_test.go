package portfolio

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	domain "github.com/R3E-Network/canvas/internal/app/domain/portfolio"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/storage"
	"github.com/R3E-Network/canvas/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	admin  user.User
	gm     user.User
	other  user.User
	leader user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	mk := func(email string, role user.Role) user.User {
		u, err := store.CreateUser(ctx, user.User{Email: email, Name: email, Role: role, IsActive: true})
		require.NoError(t, err)
		return u
	}
	f := fixture{
		store:  store,
		admin:  mk("admin@example.com", user.RoleAdmin),
		gm:     mk("gm@example.com", user.RoleGM),
		other:  mk("other@example.com", user.RoleGM),
		leader: mk("gl@example.com", user.RoleGroupLeader),
	}
	f.svc = New(store, logging.Discard())
	return f
}

func (f fixture) addVBU(t *testing.T, name string, gm user.User, lane canvas.LifecycleLane, leader *user.User) canvas.Canvas {
	t.Helper()
	ctx := context.Background()
	v := vbu.VBU{Name: name, GMID: gm.ID}
	if leader != nil {
		v.GroupLeaderID = &leader.ID
	}
	created, err := f.store.CreateVBU(ctx, v, canvas.Canvas{LifecycleLane: lane})
	require.NoError(t, err)
	c, err := f.store.GetCanvasByVBU(ctx, created.ID)
	require.NoError(t, err)
	return c
}

func TestSummaryFiltersAndScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alpha := f.addVBU(t, "Alpha", f.gm, canvas.LaneBuild, &f.leader)
	f.addVBU(t, "Bravo", f.gm, canvas.LaneSell, nil)
	f.addVBU(t, "Charlie", f.other, canvas.LaneMilk, nil)
	require.NoError(t, f.store.SetCanvasHealth(ctx, alpha.ID, canvas.HealthAtRisk, time.Now()))

	all, err := f.svc.Summary(ctx, f.admin, FilterInput{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alpha", all[0].Name)
	assert.Equal(t, canvas.HealthAtRisk, all[0].HealthIndicator)
	assert.Equal(t, canvas.HealthNotStarted, all[1].HealthIndicator)

	lanes, err := f.svc.Summary(ctx, f.admin, FilterInput{Lanes: []string{"build", "MILK"}})
	require.NoError(t, err)
	require.Len(t, lanes, 2)
	assert.Equal(t, "Charlie", lanes[1].Name)

	combined, err := f.svc.Summary(ctx, f.admin, FilterInput{GMIDs: []string{f.gm.ID}, HealthStatuses: []string{"not_started"}})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "Bravo", combined[0].Name)

	mine, err := f.svc.Summary(ctx, f.gm, FilterInput{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	led, err := f.svc.Summary(ctx, f.leader, FilterInput{})
	require.NoError(t, err)
	require.Len(t, led, 1)
	assert.Equal(t, "Alpha", led[0].Name)
}

func TestSummaryRejectsBadFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for name, in := range map[string]FilterInput{
		"lane":   {Lanes: []string{"grow"}},
		"gm":     {GMIDs: []string{"not-a-uuid"}},
		"health": {HealthStatuses: []string{"Excellent"}},
	} {
		_, err := f.svc.Summary(ctx, f.admin, in)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), name)
	}
}

func TestSummaryCurrentlyTestingAndNextReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addVBU(t, "Alpha", f.gm, canvas.LaneBuild, nil)

	th, err := f.store.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "Enterprise buyers pay for audit trails"})
	require.NoError(t, err)
	_, err = f.store.CreateReview(ctx, review.MonthlyReview{
		CanvasID:             c.ID,
		ReviewDate:           time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		CurrentlyTestingType: canvas.TestingThesis,
		CurrentlyTestingID:   th.ID,
		Commitments:          []review.Commitment{{Text: "x", Order: 1}},
	}, nil)
	require.NoError(t, err)

	notes := "keep an eye on churn"
	_, err = f.store.UpdateCanvas(ctx, storage.CanvasUpdate{
		CanvasID: c.ID,
		Text:     map[storage.CanvasColumn]*string{storage.ColPortfolioNotes: &notes},
	})
	require.NoError(t, err)

	rows, err := f.svc.Summary(ctx, f.admin, FilterInput{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].CurrentlyTesting)
	assert.Equal(t, th.Text, *rows[0].CurrentlyTesting)
	require.NotNil(t, rows[0].NextReviewDate)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), *rows[0].NextReviewDate)
	require.NotNil(t, rows[0].PortfolioNotes)

	rows, err = f.svc.Summary(ctx, f.gm, FilterInput{})
	require.NoError(t, err)
	assert.Nil(t, rows[0].PortfolioNotes)
}

func TestNotesAdminOnlyAndEscaped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Notes(ctx, f.leader)
	require.Error(t, err)
	assert.Equal(t, "Admin role required", apperrors.GetServiceError(err).Message)

	empty, err := f.svc.Notes(ctx, f.admin)
	require.NoError(t, err)
	assert.Nil(t, empty.Notes)

	text := `<script>alert("x")</script> & more`
	n, err := f.svc.UpdateNotes(ctx, f.admin, &text)
	require.NoError(t, err)
	require.NotNil(t, n.Notes)
	assert.Equal(t, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; more", *n.Notes)
	require.NotNil(t, n.UpdatedBy)
	assert.Equal(t, f.admin.ID, *n.UpdatedBy)

	read, err := f.svc.Notes(ctx, f.admin)
	require.NoError(t, err)
	require.NotNil(t, read.Notes)
	assert.Equal(t, *n.Notes, *read.Notes)

	long := string(make([]rune, 10001))
	_, err = f.svc.UpdateNotes(ctx, f.admin, &long)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestNotesAtLimitWithEscapableCharactersFitColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text := strings.Repeat("&", domain.MaxNotesLen)
	n, err := f.svc.UpdateNotes(ctx, f.admin, &text)
	require.NoError(t, err)
	require.NotNil(t, n.Notes)
	assert.Equal(t, strings.Repeat("&amp;", domain.MaxNotesLen), *n.Notes)

	stored, err := f.store.GetPortfolioNotes(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.Notes)
	assert.Len(t, []rune(*stored.Notes), domain.MaxNotesLen)

	over := text + "<"
	_, err = f.svc.UpdateNotes(ctx, f.admin, &over)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}
