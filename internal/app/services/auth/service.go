package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/metrics"
	"github.com/R3E-Network/canvas/internal/app/storage"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

const (
	BcryptCost        = 12
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the JWT payload. Refresh tokens carry only sub and type.
type Claims struct {
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Config holds token signing parameters.
type Config struct {
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Service authenticates users and issues tokens.
type Service struct {
	users storage.UserStore
	cfg   Config
	log   *logging.Logger
	now   func() time.Time
}

// New creates an auth service.
func New(users storage.UserStore, cfg Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("auth")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 30 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &Service{users: users, cfg: cfg, log: log, now: time.Now}
}

// RefreshTokenTTL exposes the refresh lifetime for cookie Max-Age.
func (s *Service) RefreshTokenTTL() time.Duration {
	return s.cfg.RefreshTokenTTL
}

// HashPassword bcrypt-hashes a password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ValidatePassword enforces length bounds.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperrors.Validationf("Password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return apperrors.Validationf("Password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// Authenticate checks credentials, maintaining the failed-attempt counter and
// lockout window. All credential failures produce the same 401.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user.User, error) {
	invalid := apperrors.Unauthorized("Invalid email or password")

	u, err := s.users.GetUserByEmail(ctx, user.NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		metrics.RecordLogin("unknown_user")
		return user.User{}, invalid
	}
	if err != nil {
		return user.User{}, apperrors.Internal("", err)
	}

	now := s.now().UTC()
	if !u.IsActive {
		metrics.RecordLogin("inactive")
		return user.User{}, invalid
	}
	if u.Locked(now) {
		metrics.RecordLogin("locked")
		s.log.LogSecurityEvent(ctx, "login_locked", map[string]interface{}{"user_id": u.ID})
		return user.User{}, invalid
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		u.FailedLoginAttempts++
		if u.FailedLoginAttempts >= MaxFailedAttempts {
			until := now.Add(LockoutDuration)
			u.LockedUntil = &until
			s.log.LogSecurityEvent(ctx, "account_locked", map[string]interface{}{"user_id": u.ID, "until": until})
		}
		if _, err := s.users.UpdateUser(ctx, u); err != nil {
			s.log.WithError(err).Warn("record failed login")
		}
		metrics.RecordLogin("bad_password")
		return user.User{}, invalid
	}

	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	updated, err := s.users.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, apperrors.Internal("", err)
	}
	metrics.RecordLogin("success")
	s.log.WithContext(ctx).WithField("user_id", u.ID).Info("user logged in")
	return updated, nil
}

// IssueAccessToken signs a short-lived access token.
func (s *Service) IssueAccessToken(u user.User) (string, error) {
	return s.sign(Claims{
		Email: u.Email,
		Role:  string(u.Role),
		Type:  TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.cfg.AccessTokenTTL)),
		},
	})
}

// IssueRefreshToken signs a long-lived refresh token.
func (s *Service) IssueRefreshToken(u user.User) (string, error) {
	return s.sign(Claims{
		Type: TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.cfg.RefreshTokenTTL)),
		},
	})
}

func (s *Service) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", apperrors.Internal("", err)
	}
	return signed, nil
}

// VerifyToken validates signature, expiry and token type.
func (s *Service) VerifyToken(tokenString string, kind TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, apperrors.InvalidToken(err)
	}
	if claims.Type != kind || claims.Subject == "" {
		return nil, apperrors.InvalidToken(nil).WithDetails("reason", "wrong token type")
	}
	return claims, nil
}

// CurrentUser resolves an access token to an active user.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (user.User, error) {
	claims, err := s.VerifyToken(accessToken, TokenAccess)
	if err != nil {
		return user.User{}, err
	}
	return s.activeUser(ctx, claims.Subject)
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (user.User, string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return user.User{}, "", apperrors.Unauthorized("Refresh token not found")
	}
	claims, err := s.VerifyToken(refreshToken, TokenRefresh)
	if err != nil {
		return user.User{}, "", apperrors.Unauthorized("Invalid refresh token")
	}
	u, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return user.User{}, "", err
	}
	access, err := s.IssueAccessToken(u)
	if err != nil {
		return user.User{}, "", err
	}
	return u, access, nil
}

// ChangePassword updates the caller's password. The current password is
// required unless an admin reset forced a change.
func (s *Service) ChangePassword(ctx context.Context, actor user.User, currentPassword, newPassword string) error {
	u, err := s.activeUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !u.MustResetPassword {
		if currentPassword == "" {
			return apperrors.Validation("current_password is required")
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)) != nil {
			return apperrors.Validation("Current password is incorrect")
		}
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return apperrors.Internal("", err)
	}
	u.PasswordHash = hash
	u.MustResetPassword = false
	if _, err := s.users.UpdateUser(ctx, u); err != nil {
		return apperrors.Internal("", err)
	}
	s.log.WithContext(ctx).WithField("user_id", u.ID).Info("password changed")
	return nil
}

func (s *Service) activeUser(ctx context.Context, id string) (user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperrors.Unauthorized("User not found")
	}
	if err != nil {
		return user.User{}, apperrors.Internal("", err)
	}
	if !u.IsActive {
		return user.User{}, apperrors.Unauthorized("User not found")
	}
	return u, nil
}
