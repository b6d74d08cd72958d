package users

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/R3E-Network/canvas/internal/app/access"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/services/auth"
	"github.com/R3E-Network/canvas/internal/app/storage"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

const (
	MaxNameLength        = 255
	TemporaryPasswordLen = 16
)

// Hasher produces password hashes. *auth.Service satisfies it.
type Hasher interface {
	HashPassword(password string) (string, error)
}

var _ Hasher = (*auth.Service)(nil)

// Service manages user accounts on behalf of administrators.
type Service struct {
	users    storage.UserStore
	vbus     storage.VBUStore
	hasher   Hasher
	validate *validator.Validate
	log      *logging.Logger
}

// New creates a user administration service.
func New(users storage.UserStore, vbus storage.VBUStore, hasher Hasher, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("users")
	}
	return &Service{users: users, vbus: vbus, hasher: hasher, validate: validator.New(), log: log}
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
	VBUID    *string
}

// Register creates an active account. Only admins may register users.
func (s *Service) Register(ctx context.Context, actor user.User, in RegisterInput) (user.User, error) {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return user.User{}, err
	}

	email := user.NormalizeEmail(in.Email)
	if err := s.validate.Var(email, "required,email,max=255"); err != nil {
		return user.User{}, apperrors.InvalidFormat("email", "must be a valid email address")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return user.User{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > MaxNameLength {
		return user.User{}, apperrors.InvalidFormat("name", "must be between 1 and 255 characters")
	}
	role := user.RoleViewer
	if strings.TrimSpace(in.Role) != "" {
		parsed, ok := user.ParseRole(in.Role)
		if !ok {
			return user.User{}, apperrors.InvalidFormat("role", "unknown role")
		}
		role = parsed
	}
	vbuID, err := s.resolveViewerVBU(ctx, role, in.VBUID)
	if err != nil {
		return user.User{}, err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return user.User{}, apperrors.Conflict("Email already registered")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperrors.Internal("", err)
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return user.User{}, apperrors.Internal("", err)
	}
	created, err := s.users.CreateUser(ctx, user.User{
		Email:        email,
		Name:         name,
		Role:         role,
		IsActive:     true,
		VBUID:        vbuID,
		PasswordHash: hash,
	})
	if errors.Is(err, storage.ErrConflict) {
		return user.User{}, apperrors.Conflict("Email already registered")
	}
	if err != nil {
		return user.User{}, apperrors.Internal("", err)
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{"user_id": created.ID, "role": role}).Info("user registered")
	return created, nil
}

// List returns every account. Admin only.
func (s *Service) List(ctx context.Context, actor user.User) ([]user.User, error) {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return nil, err
	}
	list, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	return list, nil
}

// Patch carries optional account changes. An empty VBUID clears the viewer
// restriction.
type Patch struct {
	Role     *string
	IsActive *bool
	VBUID    *string
}

// Update applies an admin change to an account.
func (s *Service) Update(ctx context.Context, actor user.User, id string, patch Patch) (user.User, error) {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return user.User{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, apperrors.Validation("Invalid user ID or role")
	}
	target, err := s.load(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if patch.Role != nil {
		role, ok := user.ParseRole(*patch.Role)
		if !ok {
			return user.User{}, apperrors.Validation("Invalid user ID or role")
		}
		if target.ID == actor.ID && role != user.RoleAdmin {
			return user.User{}, apperrors.Conflict("Cannot remove your own admin role")
		}
		target.Role = role
	}
	if patch.IsActive != nil {
		if target.ID == actor.ID && !*patch.IsActive {
			return user.User{}, apperrors.Conflict("Cannot deactivate own account")
		}
		target.IsActive = *patch.IsActive
	}
	if patch.VBUID != nil {
		if *patch.VBUID == "" {
			target.VBUID = nil
		} else {
			v := *patch.VBUID
			target.VBUID = &v
		}
	}
	if target.Role != user.RoleViewer {
		target.VBUID = nil
	}
	if target.VBUID != nil {
		if _, err := s.resolveViewerVBU(ctx, target.Role, target.VBUID); err != nil {
			return user.User{}, err
		}
	}

	updated, err := s.users.UpdateUser(ctx, target)
	if err != nil {
		return user.User{}, apperrors.Internal("", err)
	}
	s.log.WithContext(ctx).WithField("user_id", id).Info("user updated")
	return updated, nil
}

// UpdateRole changes a user's role.
func (s *Service) UpdateRole(ctx context.Context, actor user.User, id, role string) (user.User, error) {
	return s.Update(ctx, actor, id, Patch{Role: &role})
}

// Delete removes an account. Admins cannot delete themselves and GMs that
// still own a VBU cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor user.User, id string) error {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.Validation("Invalid user ID")
	}
	if id == actor.ID {
		return apperrors.Conflict("Cannot delete own account")
	}
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	err := s.users.DeleteUser(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.NotFound("User")
	case errors.Is(err, storage.ErrConflict):
		return apperrors.Conflict("User is the GM of one or more VBUs")
	case err != nil:
		return apperrors.Internal("", err)
	}
	s.log.LogSecurityEvent(ctx, "user_deleted", map[string]interface{}{"user_id": id})
	return nil
}

// AdminResetPassword replaces a user's password with a generated temporary
// one, which is returned exactly once. The user must change it on next use.
func (s *Service) AdminResetPassword(ctx context.Context, actor user.User, id string) (string, error) {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return "", err
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.Validation("Invalid user ID")
	}
	target, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}

	temp := temporaryPassword()
	hash, err := s.hasher.HashPassword(temp)
	if err != nil {
		return "", apperrors.Internal("", err)
	}
	target.PasswordHash = hash
	target.MustResetPassword = true
	target.FailedLoginAttempts = 0
	target.LockedUntil = nil
	if _, err := s.users.UpdateUser(ctx, target); err != nil {
		return "", apperrors.Internal("", err)
	}
	s.log.LogSecurityEvent(ctx, "password_reset_by_admin", map[string]interface{}{"user_id": id})
	return temp, nil
}

func (s *Service) load(ctx context.Context, id string) (user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperrors.NotFound("User")
	}
	if err != nil {
		return user.User{}, apperrors.Internal("", err)
	}
	return u, nil
}

func (s *Service) resolveViewerVBU(ctx context.Context, role user.Role, vbuID *string) (*string, error) {
	if vbuID == nil || *vbuID == "" || role != user.RoleViewer {
		return nil, nil
	}
	if _, err := s.vbus.GetVBU(ctx, *vbuID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.InvalidFormat("vbu_id", "VBU not found")
		}
		return nil, apperrors.Internal("", err)
	}
	id := *vbuID
	return &id, nil
}

// temporaryPassword draws from uuid v4, which reads crypto/rand.
func temporaryPassword() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:TemporaryPasswordLen]
}
