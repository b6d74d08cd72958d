package vbus

import (
	"context"
	"errors"
	"strings"

	"github.com/R3E-Network/canvas/internal/app/access"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/storage"
	"github.com/R3E-Network/canvas/internal/blobstore"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

const (
	MaxNameLength  = 255
	DefaultPerPage = 25
	MaxPerPage     = 100
)

// Service manages VBUs and their lifecycle.
type Service struct {
	vbus        storage.VBUStore
	users       storage.UserStore
	canvases    storage.CanvasStore
	attachments storage.AttachmentStore
	blobs       blobstore.Store
	log         *logging.Logger
}

// New creates a VBU service. blobs may be nil when attachment content is not
// stored locally.
func New(vbus storage.VBUStore, users storage.UserStore, canvases storage.CanvasStore, attachments storage.AttachmentStore, blobs blobstore.Store, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("vbus")
	}
	return &Service{vbus: vbus, users: users, canvases: canvases, attachments: attachments, blobs: blobs, log: log}
}

// CreateInput describes a new VBU.
type CreateInput struct {
	Name          string
	GMID          string
	GroupLeaderID *string
}

// Create registers a VBU together with its empty canvas. Admin only.
func (s *Service) Create(ctx context.Context, actor user.User, in CreateInput) (vbu.VBU, error) {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return vbu.VBU{}, err
	}
	name, err := validName(in.Name)
	if err != nil {
		return vbu.VBU{}, err
	}
	if err := s.requireUser(ctx, "gm_id", in.GMID); err != nil {
		return vbu.VBU{}, err
	}
	var groupLeader *string
	if in.GroupLeaderID != nil && *in.GroupLeaderID != "" {
		if err := s.requireUser(ctx, "group_leader_id", *in.GroupLeaderID); err != nil {
			return vbu.VBU{}, err
		}
		id := *in.GroupLeaderID
		groupLeader = &id
	}

	actorID := actor.ID
	created, err := s.vbus.CreateVBU(ctx, vbu.VBU{
		Name:          name,
		GMID:          in.GMID,
		GroupLeaderID: groupLeader,
		UpdatedBy:     &actorID,
	}, canvas.Canvas{LifecycleLane: canvas.LaneBuild, UpdatedBy: &actorID})
	if errors.Is(err, storage.ErrNotFound) {
		return vbu.VBU{}, apperrors.InvalidFormat("gm_id", "user not found")
	}
	if err != nil {
		return vbu.VBU{}, apperrors.Internal("", err)
	}
	s.log.WithContext(ctx).WithField("vbu_id", created.ID).Info("vbu created")
	return created, nil
}

// Get returns a VBU the actor can read.
func (s *Service) Get(ctx context.Context, actor user.User, id string) (vbu.VBU, error) {
	v, err := s.Load(ctx, id)
	if err != nil {
		return vbu.VBU{}, err
	}
	if err := access.RequireRead(actor, v); err != nil {
		return vbu.VBU{}, err
	}
	return v, nil
}

// Load fetches a VBU without an access check.
func (s *Service) Load(ctx context.Context, id string) (vbu.VBU, error) {
	v, err := s.vbus.GetVBU(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return vbu.VBU{}, apperrors.NotFound("VBU")
	}
	if err != nil {
		return vbu.VBU{}, apperrors.Internal("", err)
	}
	return v, nil
}

// List returns one page of the VBUs visible to actor, ordered by name, and
// the total number visible.
func (s *Service) List(ctx context.Context, actor user.User, page, perPage int) ([]vbu.VBU, int, error) {
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		return nil, 0, apperrors.InvalidFormat("page", "must be at least 1")
	}
	if perPage < 1 || perPage > MaxPerPage {
		return nil, 0, apperrors.InvalidFormat("per_page", "must be between 1 and 100")
	}

	scope := access.ScopeFor(actor)
	list, total, err := s.vbus.ListVBUs(ctx, storage.VBUFilter{
		GMID:          scope.GMID,
		GroupLeaderID: scope.GroupLeaderID,
		VBUID:         scope.VBUID,
		Offset:        (page - 1) * perPage,
		Limit:         perPage,
	})
	if err != nil {
		return nil, 0, apperrors.Internal("", err)
	}
	return list, total, nil
}

// Patch carries optional VBU changes. An empty GroupLeaderID clears it.
type Patch struct {
	Name          *string
	GMID          *string
	GroupLeaderID *string
}

// Update applies patch. Admins may change every field; owning GMs and group
// leaders may only rename.
func (s *Service) Update(ctx context.Context, actor user.User, id string, patch Patch) (vbu.VBU, error) {
	v, err := s.Load(ctx, id)
	if err != nil {
		return vbu.VBU{}, err
	}
	if err := access.RequireWrite(actor, v); err != nil {
		return vbu.VBU{}, err
	}

	if patch.Name != nil {
		name, err := validName(*patch.Name)
		if err != nil {
			return vbu.VBU{}, err
		}
		v.Name = name
	}
	if actor.IsAdmin() {
		if patch.GMID != nil {
			if err := s.requireUser(ctx, "gm_id", *patch.GMID); err != nil {
				return vbu.VBU{}, err
			}
			v.GMID = *patch.GMID
		}
		if patch.GroupLeaderID != nil {
			if *patch.GroupLeaderID == "" {
				v.GroupLeaderID = nil
			} else {
				if err := s.requireUser(ctx, "group_leader_id", *patch.GroupLeaderID); err != nil {
					return vbu.VBU{}, err
				}
				gl := *patch.GroupLeaderID
				v.GroupLeaderID = &gl
			}
		}
	}

	actorID := actor.ID
	v.UpdatedBy = &actorID
	updated, err := s.vbus.UpdateVBU(ctx, v)
	if errors.Is(err, storage.ErrNotFound) {
		return vbu.VBU{}, apperrors.NotFound("VBU")
	}
	if err != nil {
		return vbu.VBU{}, apperrors.Internal("", err)
	}
	return updated, nil
}

// Delete removes a VBU with everything beneath it, including attachment
// content. Admin only.
func (s *Service) Delete(ctx context.Context, actor user.User, id string) error {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return err
	}
	if _, err := s.Load(ctx, id); err != nil {
		return err
	}

	var keys []string
	if c, err := s.canvases.GetCanvasByVBU(ctx, id); err == nil {
		atts, err := s.attachments.ListAttachmentsByCanvas(ctx, c.ID)
		if err != nil {
			return apperrors.Internal("", err)
		}
		for _, a := range atts {
			keys = append(keys, a.StorageKey)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return apperrors.Internal("", err)
	}

	if err := s.vbus.DeleteVBU(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("VBU")
		}
		return apperrors.Internal("", err)
	}

	if s.blobs != nil {
		for _, key := range keys {
			if err := s.blobs.Delete(ctx, key); err != nil {
				s.log.WithContext(ctx).WithError(err).WithField("key", key).Warn("remove attachment blob")
			}
		}
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{"vbu_id": id, "blobs": len(keys)}).Info("vbu deleted")
	return nil
}

func (s *Service) requireUser(ctx context.Context, field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidFormat(field, "required")
	}
	_, err := s.users.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.InvalidFormat(field, "user not found")
	}
	if err != nil {
		return apperrors.Internal("", err)
	}
	return nil
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > MaxNameLength {
		return "", apperrors.InvalidFormat("name", "must be between 1 and 255 characters")
	}
	return name, nil
}
