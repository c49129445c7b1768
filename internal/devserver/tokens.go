package devserver

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/blindbox/internal/crypto"
)

type tokenIssuer struct {
	signKey   []byte
	accessTTL time.Duration
	now       func() time.Time
}

// issueAccess creates a signed HS256 JWT for userID.
func (ti *tokenIssuer) issueAccess(userID uuid.UUID) (string, time.Time, error) {
	now := ti.now()
	exp := now.Add(ti.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.signKey)
	return signed, exp, err
}

// verify checks signature and expiry and returns the subject.
func (ti *tokenIssuer) verify(tok string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return ti.signKey, nil
	}, jwt.WithTimeFunc(ti.now), jwt.WithLeeway(5*time.Second), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errors.New("bad subject")
	}
	return id, nil
}

// newRefreshToken returns an opaque random token.
func newRefreshToken() (string, error) {
	b, err := crypto.RandBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
