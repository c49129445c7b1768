package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("server-only-key"))
	require.NoError(t, err)
	return s
}

func TestLogin_PersistsPair(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	access := signedToken(t, exp)
	api := &fakeDoer{respBody: `{"accessToken":"` + access + `","refreshToken":"r1"}`}
	creds := &fakeCreds{}
	s := NewAuthService(api, creds)

	got, err := s.Login(context.Background(), "kid@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, access, got.AccessToken)
	require.True(t, exp.Equal(got.ExpiresAt))
	require.Equal(t, got, creds.t)

	req := api.last()
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/accounts/login", req.Path)
	require.Equal(t, loginRequest{Email: "kid@example.com", Password: "secret"}, req.Body)
}

func TestLogin_Validation(t *testing.T) {
	t.Parallel()

	api := &fakeDoer{}
	s := NewAuthService(api, &fakeCreds{})

	_, err := s.Login(context.Background(), "not-an-email", "x")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.Login(context.Background(), "a@b.co", "")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, api.calls)
}

func TestLogin_IncompletePairIsContractViolation(t *testing.T) {
	t.Parallel()

	creds := &fakeCreds{}
	s := NewAuthService(&fakeDoer{respBody: `{"accessToken":"a"}`}, creds)

	_, err := s.Login(context.Background(), "a@b.co", "pw")
	require.ErrorIs(t, err, errs.ErrContractViolation)
	require.True(t, creds.t.Empty())
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	t.Parallel()

	serverErr := &errs.HTTPError{Status: http.StatusInternalServerError, Message: "down"}
	api := &fakeDoer{err: serverErr}
	creds := &fakeCreds{t: model.Tokens{AccessToken: "a", RefreshToken: "r1"}}
	s := NewAuthService(api, creds)

	err := s.Logout(context.Background())
	require.ErrorIs(t, err, errs.ErrRejected)
	require.True(t, creds.cleared)
	require.True(t, creds.t.Empty())
	require.Equal(t, logoutRequest{RefreshToken: "r1"}, api.last().Body)
}

func TestLogout_WithoutRefreshTokenSkipsServer(t *testing.T) {
	t.Parallel()

	api := &fakeDoer{}
	creds := &fakeCreds{t: model.Tokens{AccessToken: "a"}}
	require.NoError(t, NewAuthService(api, creds).Logout(context.Background()))
	require.Empty(t, api.calls)
	require.True(t, creds.cleared)
}

func TestLogout_ClearFailureIsReported(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	creds := &fakeCreds{t: model.Tokens{RefreshToken: "r"}, clearErr: boom}
	err := NewAuthService(&fakeDoer{}, creds).Logout(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestMeAndUpdateMe(t *testing.T) {
	t.Parallel()

	api := &fakeDoer{respBody: `{"id":"u1","email":"kid@example.com","name":"Kid"}`}
	s := NewAuthService(api, &fakeCreds{})

	u, err := s.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Kid", u.Name)

	name := "Kiddo"
	_, err = s.UpdateMe(context.Background(), model.ProfilePatch{Name: &name})
	require.NoError(t, err)
	req := api.last()
	require.Equal(t, http.MethodPatch, req.Method)
	require.Equal(t, model.ProfilePatch{Name: &name}, req.Body)
}

func TestUpdateMe_RejectsEmptyAndInvalidPatch(t *testing.T) {
	t.Parallel()

	api := &fakeDoer{}
	s := NewAuthService(api, &fakeCreds{})

	_, err := s.UpdateMe(context.Background(), model.ProfilePatch{})
	require.ErrorIs(t, err, errs.ErrValidation)

	avatar := "not a url"
	_, err = s.UpdateMe(context.Background(), model.ProfilePatch{Avatar: &avatar})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, api.calls)
}

func TestMe_EmptyBody(t *testing.T) {
	t.Parallel()

	_, err := NewAuthService(&fakeDoer{}, &fakeCreds{}).Me(context.Background())
	require.ErrorIs(t, err, errs.ErrContractViolation)
}

func TestSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		creds model.Tokens
		want  model.Session
	}{
		{name: "none", want: model.Session{}},
		{
			name:  "valid",
			creds: model.Tokens{AccessToken: signedToken(t, now.Add(time.Minute)), RefreshToken: "r"},
			want:  model.Session{LoggedIn: true, ExpiresAt: now.Add(time.Minute)},
		},
		{
			name:  "expired",
			creds: model.Tokens{AccessToken: signedToken(t, now.Add(-time.Minute)), RefreshToken: "r"},
			want:  model.Session{LoggedIn: true, ExpiresAt: now.Add(-time.Minute), Expired: true},
		},
		{
			name:  "opaque token",
			creds: model.Tokens{AccessToken: "opaque", RefreshToken: "r"},
			want:  model.Session{LoggedIn: true},
		},
		{
			name:  "refresh only",
			creds: model.Tokens{RefreshToken: "r"},
			want:  model.Session{LoggedIn: true, Expired: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewAuthService(&fakeDoer{}, &fakeCreds{t: tc.creds})
			s.now = func() time.Time { return now }
			got, err := s.Session(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.want.LoggedIn, got.LoggedIn)
			require.Equal(t, tc.want.Expired, got.Expired)
			require.True(t, tc.want.ExpiresAt.Equal(got.ExpiresAt))
		})
	}
}
