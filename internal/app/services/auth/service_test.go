package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

const testSecret = "test-secret-key-that-is-long-enough-for-hs256"

func newTestService(t *testing.T) (*Service, *memory.Store, user.User) {
	t.Helper()
	store := memory.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := store.CreateUser(context.Background(), user.User{
		Email:        "gm@example.com",
		Name:         "Grace",
		Role:         user.RoleGM,
		IsActive:     true,
		PasswordHash: string(hash),
	})
	require.NoError(t, err)
	svc := New(store, Config{SecretKey: testSecret}, logging.Discard())
	return svc, store, u
}

func TestAuthenticateSuccessResetsCounters(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	u.FailedLoginAttempts = 3
	_, err := store.UpdateUser(ctx, u)
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "  GM@Example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLoginAt)
}

func TestAuthenticateFailuresLockAccount(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < MaxFailedAttempts; i++ {
		_, err := svc.Authenticate(ctx, u.Email, "wrong")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	}

	stored, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockedUntil)
	assert.Equal(t, now.Add(LockoutDuration), *stored.LockedUntil)

	_, err = svc.Authenticate(ctx, u.Email, "correct-horse")
	require.Error(t, err, "locked account must reject correct password")

	svc.now = func() time.Time { return now.Add(LockoutDuration + time.Second) }
	_, err = svc.Authenticate(ctx, u.Email, "correct-horse")
	require.NoError(t, err)
}

func TestAuthenticateUnknownAndInactiveLookIdentical(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	_, errUnknown := svc.Authenticate(ctx, "nobody@example.com", "whatever")
	require.Error(t, errUnknown)

	u.IsActive = false
	_, err := store.UpdateUser(ctx, u)
	require.NoError(t, err)
	_, errInactive := svc.Authenticate(ctx, u.Email, "correct-horse")
	require.Error(t, errInactive)

	assert.Equal(t, errUnknown.Error(), errInactive.Error())
	assert.Equal(t, "Invalid email or password", apperrors.GetServiceError(errUnknown).Message)
}

func TestTokensRoundTripAndTypeIsEnforced(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	access, err := svc.IssueAccessToken(u)
	require.NoError(t, err)
	refresh, err := svc.IssueRefreshToken(u)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, "gm", claims.Role)

	_, err = svc.VerifyToken(refresh, TokenAccess)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidToken))

	current, err := svc.CurrentUser(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)

	_, _, err = svc.Refresh(ctx, access)
	require.Error(t, err)
	assert.Equal(t, "Invalid refresh token", apperrors.GetServiceError(err).Message)

	_, newAccess, err := svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
}

func TestRefreshMissingToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.Refresh(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, "Refresh token not found", apperrors.GetServiceError(err).Message)
}

func TestVerifyRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	svc, _, u := newTestService(t)

	past := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return past }
	expired, err := svc.IssueAccessToken(u)
	require.NoError(t, err)
	svc.now = time.Now

	_, err = svc.VerifyToken(expired, TokenAccess)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidToken))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Type: TokenAccess, RegisteredClaims: jwt.RegisteredClaims{Subject: u.ID}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.VerifyToken(unsigned, TokenAccess)
	assert.Error(t, err)
}

func TestCurrentUserRejectsDeactivatedUser(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	access, err := svc.IssueAccessToken(u)
	require.NoError(t, err)

	u.IsActive = false
	_, err = store.UpdateUser(ctx, u)
	require.NoError(t, err)

	_, err = svc.CurrentUser(ctx, access)
	require.Error(t, err)
	assert.Equal(t, "User not found", apperrors.GetServiceError(err).Message)
}

func TestChangePassword(t *testing.T) {
	svc, store, u := newTestService(t)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, u, "wrong", "new-password-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	err = svc.ChangePassword(ctx, u, "correct-horse", "short")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	require.NoError(t, svc.ChangePassword(ctx, u, "correct-horse", "new-password-1"))
	_, err = svc.Authenticate(ctx, u.Email, "new-password-1")
	require.NoError(t, err)

	forced, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	forced.MustResetPassword = true
	_, err = store.UpdateUser(ctx, forced)
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, forced, "", "another-password"))
	after, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, after.MustResetPassword)
}
