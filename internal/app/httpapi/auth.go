package httpapi

import (
	"net/http"
	"strings"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/services/auth"
	"github.com/R3E-Network/canvas/internal/app/services/users"
	"github.com/R3E-Network/canvas/internal/httputil"
)

const refreshCookie = "refresh_token"

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type"`
	User         *user.User `json:"user,omitempty"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.app.Auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log.LogSecurityEvent(r.Context(), "login_failed", map[string]interface{}{
			"ip": h.proxies.ClientIP(r),
		})
		h.fail(w, r, err)
		return
	}
	access, err := h.app.Auth.IssueAccessToken(u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	refresh, err := h.app.Auth.IssueRefreshToken(u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setRefreshCookie(w, refresh, int(h.app.Auth.RefreshTokenTTL().Seconds()))
	h.ok(w, tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer", User: &u})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(refreshCookie); err == nil {
		token = c.Value
	}
	_, access, err := h.app.Auth.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, tokenResponse{AccessToken: access, TokenType: "bearer"})
}

// refreshKey rate limits refreshes per token subject, falling back to the
// client address when the cookie is missing or unreadable.
func (h *handler) refreshKey(r *http.Request) string {
	if c, err := r.Cookie(refreshCookie); err == nil && c.Value != "" {
		if claims, err := h.app.Auth.VerifyToken(c.Value, auth.TokenRefresh); err == nil {
			return "user:" + claims.Subject
		}
	}
	return h.proxies.ByIP(r)
}

func (h *handler) logout(w http.ResponseWriter, _ *http.Request) {
	h.setRefreshCookie(w, "", -1)
	noContent(w)
}

func (h *handler) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/api/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	h.ok(w, h.actor(r))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.app.Auth.ChangePassword(r.Context(), h.actor(r), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, map[string]string{"message": "Password updated"})
}

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Password string  `json:"password" validate:"required,min=8,max=128"`
	Name     string  `json:"name" validate:"required,min=1,max=255"`
	Role     string  `json:"role" validate:"omitempty,oneof=admin gm group_leader viewer"`
	VBUID    *string `json:"vbu_id" validate:"omitempty,uuid"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.app.Users.Register(r.Context(), h.actor(r), users.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
		Role:     req.Role,
		VBUID:    req.VBUID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, u)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Users.List(r.Context(), h.actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteList(w, list, len(list), 1, len(list))
}

type updateUserRequest struct {
	Role     *string        `json:"role" validate:"omitempty,oneof=admin gm group_leader viewer"`
	IsActive *bool          `json:"is_active"`
	VBUID    optionalString `json:"vbu_id" validate:"omitempty,uuid"`
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.app.Users.Update(r.Context(), h.actor(r), pathID(r), users.Patch{
		Role:     req.Role,
		IsActive: req.IsActive,
		VBUID:    req.VBUID.patch(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, u)
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Users.Delete(r.Context(), h.actor(r), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	noContent(w)
}

func (h *handler) adminResetPassword(w http.ResponseWriter, r *http.Request) {
	temp, err := h.app.Users.AdminResetPassword(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, map[string]string{"temporary_password": temp})
}
