// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package identity holds the authenticated remote session the sync layer
// checks before touching user data.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrEmailNotConfirmed is returned when a session belongs to a user who
	// has not verified their email yet.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrNoSession is returned by token lookups when nobody is signed in.
	ErrNoSession = errors.New("no authenticated session")
)

// User is the authenticated account.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

// Confirmed reports whether the email address was verified.
func (u User) Confirmed() bool { return u.EmailConfirmedAt != nil }

// Session is an authenticated remote session.
type Session struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// Provider returns the current session, or nil when signed out.
type Provider interface {
	Session(ctx context.Context) (*Session, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (*Session, error)

func (f ProviderFunc) Session(ctx context.Context) (*Session, error) { return f(ctx) }

// Holder is a Provider whose session is set by sign-in and cleared by sign-out.
type Holder struct {
	mu      sync.RWMutex
	session *Session
}

// NewHolder returns an empty holder.
func NewHolder() *Holder { return &Holder{} }

func (h *Holder) Session(context.Context) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return nil, nil
	}
	s := *h.session
	return &s, nil
}

// Set replaces the current session.
func (h *Holder) Set(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s == nil {
		h.session = nil
		return
	}
	cp := *s
	h.session = &cp
}

// Clear signs the holder out.
func (h *Holder) Clear() { h.Set(nil) }

// Token returns the access token of the current session. It matches the
// token source signature used by the HTTP clients.
func (h *Holder) Token(ctx context.Context) (string, error) {
	s, _ := h.Session(ctx)
	if s == nil || s.AccessToken == "" {
		return "", ErrNoSession
	}
	return s.AccessToken, nil
}

// Claims is the JWT payload issued by the backend.
type Claims struct {
	Email            string `json:"email"`
	EmailConfirmedAt *int64 `json:"email_confirmed_at,omitempty"` // unix seconds
	jwt.RegisteredClaims
}

// FromToken builds a Session from an access token without verifying its
// signature; the backend verifies every request it receives.
func FromToken(token string) (*Session, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub (user ID) in token")
	}
	s := &Session{
		AccessToken: token,
		User:        User{ID: claims.Subject, Email: claims.Email},
	}
	if claims.EmailConfirmedAt != nil {
		t := time.Unix(*claims.EmailConfirmedAt, 0).UTC()
		s.User.EmailConfirmedAt = &t
	}
	return s, nil
}

// Matches reports whether p has a session for exactly userID. It returns the
// session's user id, empty when signed out, so callers can log mismatches.
func Matches(ctx context.Context, p Provider, userID string) (bool, string, error) {
	if p == nil {
		return false, "", nil
	}
	s, err := p.Session(ctx)
	if err != nil {
		return false, "", err
	}
	if s == nil {
		return false, "", nil
	}
	return s.User.ID != "" && s.User.ID == userID, s.User.ID, nil
}
