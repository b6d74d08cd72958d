// Package access decides which VBUs a user may read and write.
package access

import (
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
)

// Scope restricts listings to the VBUs a user can see. The zero value means
// unrestricted.
type Scope struct {
	GMID          string
	GroupLeaderID string
	VBUID         string
}

// ScopeFor returns the listing scope of u.
func ScopeFor(u user.User) Scope {
	switch u.Role {
	case user.RoleGM:
		return Scope{GMID: u.ID}
	case user.RoleGroupLeader:
		return Scope{GroupLeaderID: u.ID}
	case user.RoleViewer:
		if u.VBUID != nil {
			return Scope{VBUID: *u.VBUID}
		}
	}
	return Scope{}
}

// CanRead reports whether u may view v and everything beneath it.
func CanRead(u user.User, v vbu.VBU) bool {
	switch u.Role {
	case user.RoleAdmin:
		return true
	case user.RoleGM:
		return v.GMID == u.ID
	case user.RoleGroupLeader:
		return v.GroupLeaderID != nil && *v.GroupLeaderID == u.ID
	case user.RoleViewer:
		return u.VBUID == nil || *u.VBUID == v.ID
	}
	return false
}

// CanWrite reports whether u may modify content under v.
func CanWrite(u user.User, v vbu.VBU) bool {
	if u.Role == user.RoleViewer {
		return false
	}
	return CanRead(u, v)
}

// CanSeePortfolioNotes reports whether u may read and edit canvas-level
// portfolio notes.
func CanSeePortfolioNotes(u user.User) bool {
	return u.Role == user.RoleAdmin || u.Role == user.RoleGroupLeader
}

// RequireRead returns a 403 service error when u cannot read v.
func RequireRead(u user.User, v vbu.VBU) error {
	if !CanRead(u, v) {
		return apperrors.Forbidden("Access denied")
	}
	return nil
}

// RequireWrite returns a 403 service error when u cannot write v.
func RequireWrite(u user.User, v vbu.VBU) error {
	if !CanWrite(u, v) {
		return apperrors.Forbidden("Access denied")
	}
	return nil
}

// RequireAdmin returns a 403 service error unless u is an admin.
func RequireAdmin(u user.User, message string) error {
	if u.Role != user.RoleAdmin {
		if message == "" {
			message = "Admin role required"
		}
		return apperrors.Forbidden(message)
	}
	return nil
}
