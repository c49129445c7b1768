package repository

import (
	"context"

	"github.com/and161185/blindbox/internal/model"
)

// SnapshotRepository persists the cart snapshot used for offline resume.
type SnapshotRepository interface {
	// LoadCart returns the last saved snapshot or errs.ErrNotFound.
	LoadCart(ctx context.Context) (model.CartSnapshot, error)
	// SaveCart overwrites the snapshot.
	SaveCart(ctx context.Context, s model.CartSnapshot) error
	// DeleteCart removes the snapshot; deleting a missing snapshot is not an error.
	DeleteCart(ctx context.Context) error
}
