package reviews

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/services/canvases"
	"github.com/R3E-Network/canvas/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	gm     user.User
	viewer user.User
	canvas canvas.Canvas
	other  canvas.Canvas
	thesis canvas.Thesis
	pp     canvas.ProofPoint
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	gm, err := store.CreateUser(ctx, user.User{Email: "gm@example.com", Name: "GM", Role: user.RoleGM, IsActive: true})
	require.NoError(t, err)
	viewer, err := store.CreateUser(ctx, user.User{Email: "v@example.com", Name: "V", Role: user.RoleViewer, IsActive: true})
	require.NoError(t, err)

	v, err := store.CreateVBU(ctx, vbu.VBU{Name: "Payments", GMID: gm.ID}, canvas.Canvas{})
	require.NoError(t, err)
	c, err := store.GetCanvasByVBU(ctx, v.ID)
	require.NoError(t, err)
	ov, err := store.CreateVBU(ctx, vbu.VBU{Name: "Lending", GMID: gm.ID}, canvas.Canvas{})
	require.NoError(t, err)
	oc, err := store.GetCanvasByVBU(ctx, ov.ID)
	require.NoError(t, err)

	th, err := store.CreateThesis(ctx, canvas.Thesis{CanvasID: c.ID, Order: 1, Text: "t"})
	require.NoError(t, err)
	pp, err := store.CreateProofPoint(ctx, canvas.ProofPoint{ThesisID: th.ID, Description: "d"})
	require.NoError(t, err)

	svc := New(store, canvases.New(store, store, store, nil, logging.Discard()), logging.Discard())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	return fixture{svc: svc, store: store, gm: gm, viewer: viewer, canvas: c, other: oc, thesis: th, pp: pp}
}

func (f fixture) input(date string) CreateInput {
	return CreateInput{
		ReviewDate:           date,
		CurrentlyTestingType: "thesis",
		CurrentlyTestingID:   f.thesis.ID,
		Commitments:          []CommitmentInput{{Text: "Ship pilot", Order: 1}},
	}
}

func TestCreateClaimsStagedAttachmentsAndMovesPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staged, err := f.store.CreateAttachment(ctx, attachment.Attachment{CanvasID: f.canvas.ID, Filename: "a.pdf", StorageKey: "k", ContentType: "application/pdf", SizeBytes: 3})
	require.NoError(t, err)

	in := f.input("2026-03-01")
	in.CurrentlyTestingType = "proof_point"
	in.CurrentlyTestingID = f.pp.ID
	in.Commitments = []CommitmentInput{{Text: "second", Order: 2}, {Text: " first ", Order: 1}}
	in.AttachmentIDs = []string{staged.ID}
	moved := "Signed two customers"
	in.WhatMoved = &moved

	r, err := f.svc.Create(ctx, f.gm, f.canvas.ID, in)
	require.NoError(t, err)
	require.Len(t, r.Commitments, 2)
	assert.Equal(t, "first", r.Commitments[0].Text)
	require.Len(t, r.Attachments, 1)
	assert.Equal(t, staged.ID, r.Attachments[0].ID)
	assert.Equal(t, canvas.TestingProofPoint, r.CurrentlyTestingType)

	c, err := f.store.GetCanvas(ctx, f.canvas.ID)
	require.NoError(t, err)
	require.NotNil(t, c.CurrentlyTestingID)
	assert.Equal(t, f.pp.ID, *c.CurrentlyTestingID)

	a, err := f.store.GetAttachment(ctx, staged.ID)
	require.NoError(t, err)
	assert.Equal(t, attachment.EntityMonthlyReview, a.Entity())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := string(make([]rune, 5001))

	cases := map[string]func(*CreateInput){
		"future date":    func(in *CreateInput) { in.ReviewDate = "2026-03-16" },
		"bad date":       func(in *CreateInput) { in.ReviewDate = "03/01/2026" },
		"no commitments": func(in *CreateInput) { in.Commitments = nil },
		"four commitments": func(in *CreateInput) {
			in.Commitments = append(in.Commitments, in.Commitments[0], in.Commitments[0], in.Commitments[0])
		},
		"duplicate order": func(in *CreateInput) {
			in.Commitments = []CommitmentInput{{Text: "a", Order: 1}, {Text: "b", Order: 1}}
		},
		"order out of range": func(in *CreateInput) { in.Commitments = []CommitmentInput{{Text: "a", Order: 4}} },
		"blank commitment":   func(in *CreateInput) { in.Commitments = []CommitmentInput{{Text: "  ", Order: 1}} },
		"long narrative":     func(in *CreateInput) { in.WhatLearned = &long },
		"bad testing type":   func(in *CreateInput) { in.CurrentlyTestingType = "vbu" },
		"wrong testing kind": func(in *CreateInput) { in.CurrentlyTestingType = "proof_point" },
		"too many attachments": func(in *CreateInput) {
			in.AttachmentIDs = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}
		},
		"unknown attachment": func(in *CreateInput) { in.AttachmentIDs = []string{"missing"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.input("2026-03-01")
			mutate(&in)
			_, err := f.svc.Create(ctx, f.gm, f.canvas.ID, in)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "got %v", err)
		})
	}
}

func TestCreateRejectsForeignTargetsAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	foreign, err := f.store.CreateAttachment(ctx, attachment.Attachment{CanvasID: f.other.ID, Filename: "a.pdf", StorageKey: "k", ContentType: "application/pdf", SizeBytes: 3})
	require.NoError(t, err)
	in := f.input("2026-03-01")
	in.AttachmentIDs = []string{foreign.ID}
	_, err = f.svc.Create(ctx, f.gm, f.canvas.ID, in)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "attachment staged elsewhere")

	_, err = f.svc.Create(ctx, f.gm, f.other.ID, f.input("2026-03-01"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "thesis of another canvas")

	_, err = f.svc.Create(ctx, f.gm, f.canvas.ID, f.input("2026-03-01"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.gm, f.canvas.ID, f.input("2026-03-01"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = f.svc.Create(ctx, f.viewer, f.canvas.ID, f.input("2026-02-01"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestListGetAndOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, d := range []string{"2026-01-01", "2026-03-01", "2026-02-01"} {
		_, err := f.svc.Create(ctx, f.gm, f.canvas.ID, f.input(d))
		require.NoError(t, err)
	}

	list, err := f.svc.List(ctx, f.viewer, f.canvas.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2026-03-01", list[0].ReviewDate.Format(DateLayout))
	assert.Equal(t, "2026-01-01", list[2].ReviewDate.Format(DateLayout))

	got, err := f.svc.Get(ctx, f.viewer, list[1].ID)
	require.NoError(t, err)
	assert.Len(t, got.Commitments, 1)
	assert.NotNil(t, got.Attachments)

	latest, err := f.svc.Latest(ctx, f.canvas.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, list[0].ID, latest.ID)

	opts, err := f.svc.Options(ctx, f.gm, f.canvas.ID)
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Len(t, opts[0].ProofPoints, 1)

	_, err = f.svc.Get(ctx, f.gm, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
