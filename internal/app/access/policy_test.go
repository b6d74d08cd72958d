package access

import (
	"testing"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
)

func strPtr(s string) *string { return &s }

func TestReadWriteMatrix(t *testing.T) {
	owned := vbu.VBU{ID: "v1", GMID: "gm", GroupLeaderID: strPtr("gl")}
	other := vbu.VBU{ID: "v2", GMID: "other-gm"}

	cases := []struct {
		name  string
		u     user.User
		v     vbu.VBU
		read  bool
		write bool
	}{
		{"admin any", user.User{ID: "a", Role: user.RoleAdmin}, other, true, true},
		{"gm owner", user.User{ID: "gm", Role: user.RoleGM}, owned, true, true},
		{"gm stranger", user.User{ID: "gm", Role: user.RoleGM}, other, false, false},
		{"group leader owner", user.User{ID: "gl", Role: user.RoleGroupLeader}, owned, true, true},
		{"group leader stranger", user.User{ID: "gl", Role: user.RoleGroupLeader}, other, false, false},
		{"viewer unscoped", user.User{ID: "x", Role: user.RoleViewer}, other, true, false},
		{"viewer scoped match", user.User{ID: "x", Role: user.RoleViewer, VBUID: strPtr("v1")}, owned, true, false},
		{"viewer scoped other", user.User{ID: "x", Role: user.RoleViewer, VBUID: strPtr("v1")}, other, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRead(tc.u, tc.v); got != tc.read {
				t.Fatalf("read: expected %v, got %v", tc.read, got)
			}
			if got := CanWrite(tc.u, tc.v); got != tc.write {
				t.Fatalf("write: expected %v, got %v", tc.write, got)
			}
		})
	}
}

func TestScopeFor(t *testing.T) {
	if s := ScopeFor(user.User{ID: "gm", Role: user.RoleGM}); s.GMID != "gm" {
		t.Fatalf("gm scope: %+v", s)
	}
	if s := ScopeFor(user.User{ID: "gl", Role: user.RoleGroupLeader}); s.GroupLeaderID != "gl" {
		t.Fatalf("group leader scope: %+v", s)
	}
	if s := ScopeFor(user.User{Role: user.RoleViewer, VBUID: strPtr("v1")}); s.VBUID != "v1" {
		t.Fatalf("viewer scope: %+v", s)
	}
	if s := ScopeFor(user.User{Role: user.RoleAdmin}); s != (Scope{}) {
		t.Fatalf("admin should be unscoped: %+v", s)
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(user.User{Role: user.RoleGM}, ""); err == nil || err.Error() != "FORBIDDEN: Admin role required" {
		t.Fatalf("unexpected error %v", err)
	}
	if err := RequireAdmin(user.User{Role: user.RoleAdmin}, ""); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
}
