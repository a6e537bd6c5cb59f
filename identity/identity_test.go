package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestFromToken(t *testing.T) {
	confirmed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).Unix()
	tok := signedToken(t, Claims{
		Email:            "a@example.com",
		EmailConfirmedAt: &confirmed,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	})

	s, err := FromToken(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", s.User.ID)
	require.Equal(t, "a@example.com", s.User.Email)
	require.True(t, s.User.Confirmed())
	require.Equal(t, confirmed, s.User.EmailConfirmedAt.Unix())
	require.Equal(t, tok, s.AccessToken)

	unconfirmed, err := FromToken(signedToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"}}))
	require.NoError(t, err)
	require.False(t, unconfirmed.User.Confirmed())

	_, err = FromToken(signedToken(t, Claims{Email: "nobody@example.com"}))
	require.Error(t, err)

	_, err = FromToken("not-a-token")
	require.Error(t, err)
}

func TestHolderAndMatches(t *testing.T) {
	ctx := context.Background()
	h := NewHolder()

	ok, current, err := Matches(ctx, h, "u1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, current)
	_, err = h.Token(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	h.Set(&Session{AccessToken: "tok", User: User{ID: "u1"}})
	ok, _, err = Matches(ctx, h, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, current, err = Matches(ctx, h, "u2")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "u1", current)

	tok, err := h.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok", tok)

	h.Clear()
	s, err := h.Session(ctx)
	require.NoError(t, err)
	require.Nil(t, s)

	ok, _, err = Matches(ctx, nil, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}
