package user

import (
	"strings"
	"time"
)

// Role determines what a user may see and change.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleGM          Role = "gm"
	RoleGroupLeader Role = "group_leader"
	RoleViewer      Role = "viewer"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleGM, RoleGroupLeader, RoleViewer}

// ParseRole normalises and validates a role string.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, r := range Roles {
		if r == role {
			return role, true
		}
	}
	return "", false
}

// User is an authenticated principal. VBUID narrows a viewer to one VBU.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Role                Role       `json:"role"`
	IsActive            bool       `json:"is_active"`
	VBUID               *string    `json:"vbu_id"`
	MustResetPassword   bool       `json:"must_reset_password"`
	LastLoginAt         *time.Time `json:"last_login_at"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	PasswordHash        string     `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Locked reports whether the account is inside a lockout window.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
