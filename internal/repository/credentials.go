// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/blindbox/internal/model"
)

// Fixed storage keys shared by every backend.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyCartStorage  = "cart-storage"
)

// CredentialRepository persists the credential pair.
type CredentialRepository interface {
	// Get returns the stored pair; a zero Tokens and nil error when nothing is stored.
	Get(ctx context.Context) (model.Tokens, error)
	// Save replaces both tokens.
	Save(ctx context.Context, t model.Tokens) error
	// SetAccessToken replaces only the access token, keeping the refresh token.
	SetAccessToken(ctx context.Context, access string) error
	// Clear removes both tokens.
	Clear(ctx context.Context) error
}
