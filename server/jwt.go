// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/identity"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/internal/auth"
)

const tokenIssuer = "gymsync"

var (
	ErrNoBearer       = errors.New("bearer token required")
	ErrMissingSubject = errors.New("missing sub (user ID) in token")
)

// JWTAuth issues and verifies the HS256 access tokens accepted by the
// row and storage endpoints.
type JWTAuth struct {
	secret []byte
	now    func() time.Time
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret), now: time.Now}
}

// GenerateToken issues an access token for userID. A nil confirmedAt
// produces a token for an unconfirmed account.
func (j *JWTAuth) GenerateToken(userID, email string, confirmedAt *time.Time, ttl time.Duration) (string, error) {
	issued := j.now()
	claims := identity.Claims{Email: email}
	claims.Subject = userID
	claims.Issuer = tokenIssuer
	claims.IssuedAt = jwt.NewNumericDate(issued)
	claims.NotBefore = claims.IssuedAt
	claims.ExpiresAt = jwt.NewNumericDate(issued.Add(ttl))
	if confirmedAt != nil {
		ts := confirmedAt.Unix()
		claims.EmailConfirmedAt = &ts
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(j.secret)
}

// ValidateToken checks signature, issuer and lifetime of raw and returns
// its claims.
func (j *JWTAuth) ValidateToken(raw string) (*identity.Claims, error) {
	claims := &identity.Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(j.now),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", ErrNoBearer
	}
	return strings.TrimSpace(raw), nil
}

// GetUserID returns the authenticated user of r, preferring the principal
// set by Middleware over re-reading the Authorization header.
func (j *JWTAuth) GetUserID(r *http.Request) (string, error) {
	if userID, ok := auth.GetUserID(r.Context()); ok {
		return userID, nil
	}
	raw, err := bearerToken(r)
	if err != nil {
		return "", err
	}
	claims, err := j.ValidateToken(raw)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid token with 401 and stores
// the principal for downstream handlers.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
			return
		}
		claims, err := j.ValidateToken(raw)
		if err != nil {
			slog.Debug("Rejected access token", "error", err, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication_failed", "Invalid token")
			return
		}
		ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: claims.Subject, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
