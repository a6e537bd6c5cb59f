package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/identity"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/internal/auth"
)

func TestJWTAuth_GenerateToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	confirmed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	token, err := jwtAuth.GenerateToken("user-123", "a@example.com", &confirmed, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtAuth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, "a@example.com", claims.Email)
	require.NotNil(t, claims.EmailConfirmedAt)
	require.Equal(t, confirmed.Unix(), *claims.EmailConfirmedAt)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 2*time.Second)

	// The client reads the same claims without the secret.
	session, err := identity.FromToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", session.User.ID)
	require.True(t, session.User.Confirmed())
}

func TestJWTAuth_UnconfirmedToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	token, err := jwtAuth.GenerateToken("user-1", "", nil, time.Hour)
	require.NoError(t, err)

	session, err := identity.FromToken(token)
	require.NoError(t, err)
	require.False(t, session.User.Confirmed())
}

func TestJWTAuth_ValidateToken_Failures(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTAuth("other-secret").GenerateToken("u", "", nil, time.Hour)
		require.NoError(t, err)
		_, err = jwtAuth.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := jwtAuth.GenerateToken("u", "", nil, -time.Minute)
		require.NoError(t, err)
		_, err = jwtAuth.ValidateToken(token)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := jwtAuth.GenerateToken("", "", nil, time.Hour)
		require.NoError(t, err)
		_, err = jwtAuth.ValidateToken(token)
		require.ErrorContains(t, err, "missing sub")
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &identity.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = jwtAuth.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := jwtAuth.ValidateToken("not.a.token")
		require.Error(t, err)
	})
}

func TestJWTAuth_Middleware(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	var seenUser, seenEmail string
	handler := jwtAuth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser, _ = auth.GetUserID(r.Context())
		seenEmail, _ = auth.GetEmail(r.Context())
		uid, err := jwtAuth.GetUserID(r)
		require.NoError(t, err)
		require.Equal(t, seenUser, uid)
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := jwtAuth.GenerateToken("user-9", "nine@example.com", nil, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/workouts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "user-9", seenUser)
	require.Equal(t, "nine@example.com", seenEmail)

	for _, header := range []string{"", "Token " + token, "Bearer ", "Bearer bogus"} {
		req := httptest.NewRequest(http.MethodGet, "/rest/v1/workouts", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		require.Contains(t, rec.Body.String(), "authentication_failed")
	}
}

func TestJWTAuth_GetUserIDFromHeader(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	token, err := jwtAuth.GenerateToken("user-7", "", nil, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	uid, err := jwtAuth.GetUserID(req)
	require.NoError(t, err)
	require.Equal(t, "user-7", uid)

	_, err = jwtAuth.GetUserID(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
}
