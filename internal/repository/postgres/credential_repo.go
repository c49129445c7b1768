package postgres

import (
	"context"

	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
)

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo implements CredentialRepository on the client_credentials table.
type CredentialRepo struct{ db *DB }

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

// Get loads both tokens for the profile.
func (r *CredentialRepo) Get(ctx context.Context) (model.Tokens, error) {
	const q = `
SELECT key, value
FROM client_credentials WHERE profile=$1`
	rows, err := r.db.Pool.Query(ctx, q, r.db.Profile)
	if err != nil {
		return model.Tokens{}, err
	}
	defer rows.Close()

	var t model.Tokens
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.Tokens{}, err
		}
		switch key {
		case repository.KeyAccessToken:
			t.AccessToken = value
		case repository.KeyRefreshToken:
			t.RefreshToken = value
		}
	}
	return t, rows.Err()
}

// Save upserts both tokens in one statement.
func (r *CredentialRepo) Save(ctx context.Context, t model.Tokens) error {
	const q = `
INSERT INTO client_credentials (profile, key, value, updated_at)
VALUES ($1, $2, $3, now()), ($1, $4, $5, now())
ON CONFLICT (profile, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	_, err := r.db.Pool.Exec(ctx, q, r.db.Profile,
		repository.KeyAccessToken, t.AccessToken,
		repository.KeyRefreshToken, t.RefreshToken)
	return err
}

// SetAccessToken upserts only the access token row.
func (r *CredentialRepo) SetAccessToken(ctx context.Context, access string) error {
	const q = `
INSERT INTO client_credentials (profile, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (profile, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	_, err := r.db.Pool.Exec(ctx, q, r.db.Profile, repository.KeyAccessToken, access)
	return err
}

// Clear deletes both tokens for the profile.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	const q = `DELETE FROM client_credentials WHERE profile=$1`
	_, err := r.db.Pool.Exec(ctx, q, r.db.Profile)
	return err
}
