package vbus

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/storage/memory"
	"github.com/R3E-Network/canvas/internal/blobstore"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	blobs  *blobstore.Local
	admin  user.User
	gm     user.User
	other  user.User
	leader user.User
	viewer user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	mk := func(email string, role user.Role) user.User {
		u, err := store.CreateUser(ctx, user.User{Email: email, Name: email, Role: role, IsActive: true})
		require.NoError(t, err)
		return u
	}
	f := fixture{
		store:  store,
		blobs:  blobs,
		admin:  mk("admin@example.com", user.RoleAdmin),
		gm:     mk("gm@example.com", user.RoleGM),
		other:  mk("other@example.com", user.RoleGM),
		leader: mk("gl@example.com", user.RoleGroupLeader),
		viewer: mk("viewer@example.com", user.RoleViewer),
	}
	f.svc = New(store, store, store, store, blobs, logging.Discard())
	return f
}

func TestCreateRequiresAdminAndKnownGM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.gm, CreateInput{Name: "Payments", GMID: f.gm.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.svc.Create(ctx, f.admin, CreateInput{Name: "Payments", GMID: "6f1c1a4e-1111-4222-8333-444455556666"})
	require.Error(t, err)
	assert.Equal(t, "Invalid gm_id: user not found", apperrors.GetServiceError(err).Message)

	_, err = f.svc.Create(ctx, f.admin, CreateInput{Name: "   ", GMID: f.gm.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	v, err := f.svc.Create(ctx, f.admin, CreateInput{Name: " Payments ", GMID: f.gm.ID, GroupLeaderID: &f.leader.ID})
	require.NoError(t, err)
	assert.Equal(t, "Payments", v.Name)
	assert.Equal(t, f.gm.Name, v.GMName)

	c, err := f.store.GetCanvasByVBU(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, canvas.LaneBuild, c.LifecycleLane)
}

func TestListIsRoleScopedAndPaginated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		_, err := f.svc.Create(ctx, f.admin, CreateInput{Name: name, GMID: f.gm.ID})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, f.admin, CreateInput{Name: "Delta", GMID: f.other.ID, GroupLeaderID: &f.leader.ID})
	require.NoError(t, err)

	all, total, err := f.svc.List(ctx, f.admin, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 2)
	assert.Equal(t, "Alpha", all[0].Name)
	assert.Equal(t, "Bravo", all[1].Name)

	mine, total, err := f.svc.List(ctx, f.gm, 1, 25)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, mine, 3)

	led, total, err := f.svc.List(ctx, f.leader, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Delta", led[0].Name)

	_, _, err = f.svc.List(ctx, f.admin, 1, 101)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestGetChecksAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, f.admin, CreateInput{Name: "Payments", GMID: f.gm.ID})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.other, v.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.svc.Get(ctx, f.gm, v.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.viewer, v.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.admin, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestUpdateOwnerMayOnlyRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, f.admin, CreateInput{Name: "Payments", GMID: f.gm.ID})
	require.NoError(t, err)

	renamed := "Payments EU"
	updated, err := f.svc.Update(ctx, f.gm, v.ID, Patch{Name: &renamed, GMID: &f.other.ID})
	require.NoError(t, err)
	assert.Equal(t, renamed, updated.Name)
	assert.Equal(t, f.gm.ID, updated.GMID, "gm cannot reassign ownership")
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, f.gm.ID, *updated.UpdatedBy)

	_, err = f.svc.Update(ctx, f.viewer, v.ID, Patch{Name: &renamed})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	updated, err = f.svc.Update(ctx, f.admin, v.ID, Patch{GMID: &f.other.ID})
	require.NoError(t, err)
	assert.Equal(t, f.other.ID, updated.GMID)
}

func TestDeleteRemovesAttachmentBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, f.admin, CreateInput{Name: "Payments", GMID: f.gm.ID})
	require.NoError(t, err)
	c, err := f.store.GetCanvasByVBU(ctx, v.ID)
	require.NoError(t, err)

	key := v.ID + "/staged/blob.pdf"
	require.NoError(t, f.blobs.Put(ctx, key, bytes.NewReader([]byte("%PDF")), 4, "application/pdf"))
	_, err = f.store.CreateAttachment(ctx, attachment.Attachment{CanvasID: c.ID, Filename: "a.pdf", StorageKey: key, ContentType: "application/pdf", SizeBytes: 4})
	require.NoError(t, err)

	assert.True(t, apperrors.HasCode(f.svc.Delete(ctx, f.gm, v.ID), apperrors.CodeForbidden))
	require.NoError(t, f.svc.Delete(ctx, f.admin, v.ID))

	_, err = f.blobs.Open(ctx, key)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	_, err = f.store.GetCanvas(ctx, c.ID)
	assert.Error(t, err)
}
