// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the authenticated principal through request contexts.
package auth

import (
	"context"
)

// Principal is the account a request was authenticated as.
type Principal struct {
	UserID string
	Email  string
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal. ok is false
// when the request was not authenticated.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// GetUserID is shorthand for the principal's user id.
func GetUserID(ctx context.Context) (string, bool) {
	p, ok := FromContext(ctx)
	return p.UserID, ok
}

// GetEmail is shorthand for the principal's email, which may be empty.
func GetEmail(ctx context.Context) (string, bool) {
	p, ok := FromContext(ctx)
	return p.Email, ok
}
