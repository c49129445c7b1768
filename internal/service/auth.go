package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/blindbox/internal/apiclient"
	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
)

// AuthService defines account and session operations.
type AuthService interface {
	// Login exchanges credentials for a token pair and persists it.
	Login(ctx context.Context, email, password string) (model.Tokens, error)
	// Logout revokes the refresh token and always clears local credentials.
	Logout(ctx context.Context) error
	// Me returns the current profile.
	Me(ctx context.Context) (*model.User, error)
	// UpdateMe sends only the changed profile fields.
	UpdateMe(ctx context.Context, patch model.ProfilePatch) (*model.User, error)
	// Session reports whether credentials are stored and when the access token expires.
	Session(ctx context.Context) (model.Session, error)
}

type AuthServiceImpl struct {
	api   Doer
	creds repository.CredentialRepository
	now   func() time.Time
}

// NewAuthService constructs AuthService over the API client and credential storage.
func NewAuthService(api Doer, creds repository.CredentialRepository) *AuthServiceImpl {
	return &AuthServiceImpl{api: api, creds: creds, now: time.Now}
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates and stores the returned pair.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (model.Tokens, error) {
	in := loginRequest{Email: email, Password: password}
	if err := validateStruct(in); err != nil {
		return model.Tokens{}, err
	}
	var t model.Tokens
	if err := s.api.Do(ctx, apiclient.NewRequest(http.MethodPost, "/accounts/login", in), &t); err != nil {
		return model.Tokens{}, err
	}
	if t.AccessToken == "" || t.RefreshToken == "" {
		return model.Tokens{}, fmt.Errorf("%w: login response without token pair", errs.ErrContractViolation)
	}
	if exp, ok := tokenExpiry(t.AccessToken); ok {
		t.ExpiresAt = exp
	}
	if err := s.creds.Save(ctx, t); err != nil {
		return model.Tokens{}, fmt.Errorf("save credentials: %w", err)
	}
	return t, nil
}

// Logout calls the server when a refresh token is stored, then clears the pair
// regardless of the server outcome.
func (s *AuthServiceImpl) Logout(ctx context.Context) error {
	t, err := s.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	var callErr error
	if t.HasRefresh() {
		req := apiclient.NewRequest(http.MethodPost, "/accounts/logout", logoutRequest{RefreshToken: t.RefreshToken})
		callErr = s.api.Do(ctx, req, nil)
	}
	if err := s.creds.Clear(ctx); err != nil {
		return errors.Join(callErr, fmt.Errorf("clear credentials: %w", err))
	}
	return callErr
}

// Me fetches the profile of the signed-in account.
func (s *AuthServiceImpl) Me(ctx context.Context) (*model.User, error) {
	var u *model.User
	if err := s.api.Do(ctx, apiclient.NewRequest(http.MethodGet, "/accounts/me", nil), &u); err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: empty profile", errs.ErrContractViolation)
	}
	return u, nil
}

// UpdateMe patches the profile.
func (s *AuthServiceImpl) UpdateMe(ctx context.Context, patch model.ProfilePatch) (*model.User, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrValidation)
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	var u *model.User
	if err := s.api.Do(ctx, apiclient.NewRequest(http.MethodPatch, "/accounts/me", patch), &u); err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: empty profile", errs.ErrContractViolation)
	}
	return u, nil
}

// Session inspects stored credentials without calling the server. The access
// token expiry is read from its JWT claims when the token is a JWT.
func (s *AuthServiceImpl) Session(ctx context.Context) (model.Session, error) {
	t, err := s.creds.Get(ctx)
	if err != nil {
		return model.Session{}, fmt.Errorf("load credentials: %w", err)
	}
	if t.Empty() {
		return model.Session{}, nil
	}
	sess := model.Session{LoggedIn: true}
	if t.AccessToken == "" {
		sess.Expired = true
		return sess, nil
	}
	if exp, ok := tokenExpiry(t.AccessToken); ok {
		sess.ExpiresAt = exp
		sess.Expired = !s.now().Before(exp)
	}
	return sess, nil
}

// tokenExpiry reads exp without verifying the signature; the client never holds the key.
func tokenExpiry(access string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
