package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestPG_Check(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	l := NewPG(mock, DefaultPolicy())
	k := NewKey("kid@example.com", "10.0.0.1")
	ctx := context.Background()

	mock.ExpectQuery(`SELECT blocked_until FROM login_attempts`).
		WithArgs(k.Email, k.IPHash).
		WillReturnError(pgx.ErrNoRows)
	d, err := l.Check(ctx, k)
	require.NoError(t, err)
	require.Zero(t, d)

	mock.ExpectQuery(`SELECT blocked_until FROM login_attempts`).
		WithArgs(k.Email, k.IPHash).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(time.Now().Add(time.Hour)))
	d, err = l.Check(ctx, k)
	require.NoError(t, err)
	require.Greater(t, d, 59*time.Minute)

	mock.ExpectQuery(`SELECT blocked_until FROM login_attempts`).
		WithArgs(k.Email, k.IPHash).
		WillReturnError(errors.New("conn reset"))
	_, err = l.Check(ctx, k)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_FailedAndSucceeded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	p := Policy{Window: time.Minute, MaxFails: 2, BlockFor: 10 * time.Minute}
	l := NewPG(mock, p)
	k := NewKey("kid@example.com", "10.0.0.1")
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO login_attempts`).
		WithArgs(k.Email, k.IPHash, p.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(1))
	d, err := l.Failed(ctx, k)
	require.NoError(t, err)
	require.Zero(t, d)

	mock.ExpectQuery(`INSERT INTO login_attempts`).
		WithArgs(k.Email, k.IPHash, p.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))
	mock.ExpectExec(`UPDATE login_attempts SET blocked_until`).
		WithArgs(k.Email, k.IPHash, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	d, err = l.Failed(ctx, k)
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, d)

	mock.ExpectExec(`DELETE FROM login_attempts`).
		WithArgs(k.Email, k.IPHash).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, l.Succeeded(ctx, k))

	require.NoError(t, mock.ExpectationsWereMet())
}
