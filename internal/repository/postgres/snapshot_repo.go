package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
)

var _ repository.SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo implements SnapshotRepository on the client_snapshots table.
type SnapshotRepo struct{ db *DB }

// NewSnapshotRepo constructs a snapshot repository.
func NewSnapshotRepo(db *DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// LoadCart selects the cart snapshot for the profile.
func (r *SnapshotRepo) LoadCart(ctx context.Context) (model.CartSnapshot, error) {
	const q = `
SELECT payload FROM client_snapshots
WHERE profile=$1 AND namespace=$2`
	var payload []byte
	err := r.db.Pool.QueryRow(ctx, q, r.db.Profile, repository.KeyCartStorage).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CartSnapshot{}, errs.ErrNotFound
	}
	if err != nil {
		return model.CartSnapshot{}, err
	}
	var snap model.CartSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return model.CartSnapshot{}, err
	}
	return snap, nil
}

// SaveCart upserts the snapshot payload.
func (r *SnapshotRepo) SaveCart(ctx context.Context, snap model.CartSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO client_snapshots (profile, namespace, payload, saved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (profile, namespace) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`
	_, err = r.db.Pool.Exec(ctx, q, r.db.Profile, repository.KeyCartStorage, payload, snap.SavedAt)
	return err
}

// DeleteCart removes the snapshot row.
func (r *SnapshotRepo) DeleteCart(ctx context.Context) error {
	const q = `DELETE FROM client_snapshots WHERE profile=$1 AND namespace=$2`
	_, err := r.db.Pool.Exec(ctx, q, r.db.Profile, repository.KeyCartStorage)
	return err
}
